package mycache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"cartograph/api/worldmap"
)

const tableReplyTTL = 30 * time.Minute

// TableReplyCache 缓存制图桌的完整回包（已编码的 chunk 集合），按 (scope, 位置, 版本) 命中。
// 同一进程里可能有多个引擎，scope 区分各自的制图桌

var TableReplyCache *ristretto.Cache[string, []byte]

func init() {
	if err := Configure(64); err != nil {
		panic(err)
	}
}

// Configure 按 MB 重建缓存，旧内容丢弃
func Configure(maxMB int64) error {
	if maxMB <= 0 {
		maxMB = 64
	}
	cache, err := ristretto.NewCache[string, []byte](&ristretto.Config[string, []byte]{
		NumCounters: 10000,
		MaxCost:     maxMB << 20, // 按字节计费
		BufferItems: 64,
	})
	if err != nil {
		return err
	}
	old := TableReplyCache
	TableReplyCache = cache
	if old != nil {
		old.Close()
	}
	return nil
}

func tableReplyKey(scope string, pos worldmap.BlockPos, revision int32) string {
	return fmt.Sprintf("%s|%s|%d", scope, pos, revision)
}

// GetTableReply ok 表示命中
func GetTableReply(scope string, pos worldmap.BlockPos, revision int32) ([]byte, bool) {
	TableReplyCache.Wait()
	return TableReplyCache.Get(tableReplyKey(scope, pos, revision))
}

func SetTableReply(scope string, pos worldmap.BlockPos, revision int32, data []byte) {
	if data == nil {
		return
	}
	cost := int64(len(data))
	if cost == 0 {
		cost = 1
	}
	TableReplyCache.SetWithTTL(tableReplyKey(scope, pos, revision), data, cost, tableReplyTTL)
	TableReplyCache.Wait()
}

// DropTable 制图桌被移除时清理
func DropTable(scope string, pos worldmap.BlockPos, revision int32) {
	TableReplyCache.Del(tableReplyKey(scope, pos, revision))
}
