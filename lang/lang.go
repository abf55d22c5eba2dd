// Package lang 本地化聊天与命令提示
package lang

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	TableUploadedBoth      = "commandresult-cartographers-table-uploaded-both"
	TableUploadedMap       = "commandresult-cartographers-table-uploaded-map"
	TableUploadedWaypoints = "commandresult-cartographers-table-uploaded-waypoints"
	TableUploadedNothing   = "commandresult-cartographers-table-uploaded-nothing"

	TableDownloadedBoth      = "commandresult-cartographers-table-downloaded-both"
	TableDownloadedMap       = "commandresult-cartographers-table-downloaded-map"
	TableDownloadedWaypoints = "commandresult-cartographers-table-downloaded-waypoints"
	TableDownloadedNothing   = "commandresult-cartographers-table-downloaded-nothing"

	RestoreClientSuccess         = "commandresult-mapper-restore-client-success"
	RestoreClientError           = "commandresult-mapper-restore-client-error"
	RestoreServerSuccess         = "commandresult-mapper-restore-server-success"
	RestoreServerError           = "commandresult-mapper-restore-server-error"
	RestoreClientRequestResponse = "commandresult-mapper-restore-client-request-response"
	RestoreDescription           = "commanddesc-mapper-restore"

	ErrorModDisabled         = "error-mod-disabled"
	ErrorDataCorruptedClient = "error-mod-data-corrupted-client"
	ErrorDataCorruptedServer = "error-mod-data-corrupted-server"
	ErrorUnexploredMap       = "error-unexplored-map"
	ErrorTableNotFound       = "error-cartographers-table-not-found"
	ErrorUnknownCommand      = "error-unknown-command"
	ErrorNoPrivilege         = "error-no-privilege"
)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		TableUploadedBoth:      "Map uploaded to the cartographer's table along with %d waypoints.",
		TableUploadedMap:       "Map uploaded to the cartographer's table.",
		TableUploadedWaypoints: "%d waypoints uploaded to the cartographer's table.",
		TableUploadedNothing:   "The cartographer's table already knows everything you do.",

		TableDownloadedBoth:      "Map and %d waypoints copied from the cartographer's table.",
		TableDownloadedMap:       "Map copied from the cartographer's table.",
		TableDownloadedWaypoints: "%d waypoints copied from the cartographer's table.",
		TableDownloadedNothing:   "There was nothing new on the cartographer's table.",

		RestoreClientSuccess:         "Recovery requested, waiting for the server.",
		RestoreClientError:           "Local map data is not corrupted, nothing to restore.",
		RestoreServerSuccess:         "Map recovered on the server, the corrupted data was discarded.",
		RestoreServerError:           "Server map data is not corrupted, nothing to restore.",
		RestoreClientRequestResponse: "Map data received from the server, the map is available again.",
		RestoreDescription:           "Discard corrupted map data and resynchronize",

		ErrorModDisabled:         "The world map is disabled on this server.",
		ErrorDataCorruptedClient: "Local map data is corrupted, run /mapper restore to recover it.",
		ErrorDataCorruptedServer: "Server map data is corrupted, an operator must run /mapper restore.",
		ErrorUnexploredMap:       "You have not explored this area yet.",
		ErrorTableNotFound:       "Cartographer's table not found.",
		ErrorUnknownCommand:      "Unknown command.",
		ErrorNoPrivilege:         "You are not allowed to run this command.",
	},
	language.SimplifiedChinese: {
		TableUploadedBoth:      "地图与 %d 个路径点已上传到制图桌。",
		TableUploadedMap:       "地图已上传到制图桌。",
		TableUploadedWaypoints: "%d 个路径点已上传到制图桌。",
		TableUploadedNothing:   "制图桌上已有你知道的一切。",

		TableDownloadedBoth:      "已从制图桌复制地图与 %d 个路径点。",
		TableDownloadedMap:       "已从制图桌复制地图。",
		TableDownloadedWaypoints: "已从制图桌复制 %d 个路径点。",
		TableDownloadedNothing:   "制图桌上没有新内容。",

		RestoreClientSuccess:         "已请求恢复，等待服务器响应。",
		RestoreClientError:           "本地地图数据未损坏，无需恢复。",
		RestoreServerSuccess:         "服务器地图已恢复，损坏的数据已丢弃。",
		RestoreServerError:           "服务器地图数据未损坏，无需恢复。",
		RestoreClientRequestResponse: "已收到服务器地图数据，地图恢复可用。",
		RestoreDescription:           "丢弃损坏的地图数据并重新同步",

		ErrorModDisabled:         "本服务器已关闭世界地图。",
		ErrorDataCorruptedClient: "本地地图数据已损坏，请执行 /mapper restore 恢复。",
		ErrorDataCorruptedServer: "服务器地图数据已损坏，需要管理员执行 /mapper restore。",
		ErrorUnexploredMap:       "你还没有探索过这片区域。",
		ErrorTableNotFound:       "找不到制图桌。",
		ErrorUnknownCommand:      "未知命令。",
		ErrorNoPrivilege:         "你没有权限执行该命令。",
	},
}

var matcher language.Matcher

func init() {
	tags := make([]language.Tag, 0, len(catalog))
	tags = append(tags, language.English)
	for tag, messages := range catalog {
		if tag != language.English {
			tags = append(tags, tag)
		}
		for key, msg := range messages {
			if err := message.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	matcher = language.NewMatcher(tags)
}

// Get 按语言代码取文案，未知语言回退到英文
func Get(code, key string, args ...interface{}) string {
	return Printer(code).Sprintf(key, args...)
}

func Printer(code string) *message.Printer {
	tag, _ := language.MatchStrings(matcher, code)
	return message.NewPrinter(tag)
}
