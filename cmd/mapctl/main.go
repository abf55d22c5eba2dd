// mapctl 运维工具：查看存档、签发 token、远程恢复
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"cartograph/api/api/common"
	"cartograph/api/api/interceptor"
	"cartograph/api/codec"
	"cartograph/api/codes"
	"cartograph/api/config"
	"cartograph/api/log"
	"cartograph/api/system"
	"cartograph/api/worldmap"
)

const usage = `usage: mapctl <command> [flags]

commands:
  inspect-server  summarize the server exploration blob
  inspect-client  summarize a client map cache file
  token           issue an access token
  restore         ask a running server to restore corrupted map data
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "inspect-server":
		err = inspectServer(os.Args[2:])
	case "inspect-client":
		err = inspectClient(os.Args[2:])
	case "token":
		err = issueToken(os.Args[2:])
	case "restore":
		err = restore(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mapctl:", err)
		os.Exit(1)
	}
}

func inspectServer(args []string) error {
	fs := pflag.NewFlagSet("inspect-server", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "config file")
	uid := fs.String("uid", "", "only show this player")
	_ = fs.Parse(args)

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	var save worldmap.SaveGame
	switch conf.Mapper.SaveBackend {
	case config.SaveBackendMySQL:
		if err := system.InitDb(conf.Database); err != nil {
			return err
		}
		defer system.CloseDb()
		save = system.NewDBSaveGame(system.GetDb())
	case config.SaveBackendFile:
		save = system.NewFileSaveGame(conf.Mapper.SaveDir)
	default:
		return fmt.Errorf("backend %q has nothing to inspect", conf.Mapper.SaveBackend)
	}

	data, err := save.GetData(worldmap.SaveKey)
	if err != nil {
		return err
	}
	storage := worldmap.NewServerMapStorage(conf.Mapper.BufferSize, conf.Mapper.Compress)
	if data != nil {
		if err := storage.Decode(data); err != nil {
			return err
		}
	}
	fmt.Printf("%d players, %d regions, %d bytes\n", storage.Len(), storage.RegionCount(), len(data))
	for _, p := range storage.Players() {
		if *uid != "" && p != *uid {
			continue
		}
		m, _ := storage.Get(p)
		line := fmt.Sprintf("  %s: %d regions, %d chunks", p, len(m.Regions), m.ExploredChunks())
		if m.LastKnownPosition != nil {
			line += fmt.Sprintf(", last seen at %.1f %.1f %.1f", m.LastKnownPosition.X, m.LastKnownPosition.Y, m.LastKnownPosition.Z)
		}
		fmt.Println(line)
	}
	return nil
}

func inspectClient(args []string) error {
	fs := pflag.NewFlagSet("inspect-client", pflag.ExitOnError)
	file := fs.StringP("file", "f", "", "client map cache file")
	_ = fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	if _, err := os.Stat(*file); err != nil {
		return err
	}
	storage := worldmap.NewClientMapStorage(codec.DefaultBufferSize)
	if !storage.Load(*file, nil) {
		return fmt.Errorf("%s is corrupted", *file)
	}
	stats := storage.Stats()
	qualities := make([]worldmap.ColorAndZoom, 0, len(stats))
	for q := range stats {
		qualities = append(qualities, q)
	}
	slices.Sort(qualities)
	fmt.Printf("%d chunks, %d waiting for redraw\n", storage.Len(), storage.RedrawLen())
	for _, q := range qualities {
		fmt.Printf("  color %d zoom %d: %d\n", q.Color(), q.Zoom(), stats[q])
	}
	return nil
}

func issueToken(args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "config file")
	uid := fs.String("uid", "", "subject of the token")
	root := fs.Bool("root", false, "grant the root privilege")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	_ = fs.Parse(args)
	if *uid == "" {
		return fmt.Errorf("--uid is required")
	}
	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if conf.Server.JwtSecret == "" {
		return fmt.Errorf("server.jwt_secret is not configured")
	}
	var privs []string
	if *root {
		privs = []string{interceptor.PrivilegeRoot}
	}
	token, err := interceptor.IssueToken([]byte(conf.Server.JwtSecret), *uid, privs, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func restore(args []string) error {
	fs := pflag.NewFlagSet("restore", pflag.ExitOnError)
	base := fs.String("url", "http://127.0.0.1:8086", "server base url")
	token := fs.String("token", os.Getenv("MAPPER_TOKEN"), "root token")
	_ = fs.Parse(args)

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*base, "/")+"/mapper/restore", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+*token)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var res common.Response
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("unexpected reply %q", body)
	}
	log.Infof("restore replied code=%d", res.Code)
	fmt.Println(res.Msg)
	if res.Code != codes.CODE_SUCCESS {
		return fmt.Errorf("restore failed with code %d", res.Code)
	}
	return nil
}
