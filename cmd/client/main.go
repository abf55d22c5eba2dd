// mapclient 无界面的地图客户端：连接服务端，维护本地地图缓存
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"cartograph/api/api/ws"
	"cartograph/api/command"
	"cartograph/api/config"
	"cartograph/api/log"
	"cartograph/api/service"
	"cartograph/api/worldmap"
)

type stdoutNotifier struct{}

func (stdoutNotifier) Notify(text string) { fmt.Println(text) }

const tickInterval = 50 * time.Millisecond

// stdinPlayer 没有游戏画面，位置由 "/pos x y z" 行更新
type stdinPlayer struct {
	mu  sync.Mutex
	pos *worldmap.Vec3d
}

func (p *stdinPlayer) Position() (worldmap.Vec3d, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos == nil {
		return worldmap.Vec3d{}, false
	}
	return *p.pos, true
}

func (p *stdinPlayer) CompassScale() (int, bool) { return 0, false }

func (p *stdinPlayer) set(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: /pos <x> <y> <z>")
	}
	var v [3]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("bad coordinate %q", a)
		}
		v[i] = f
	}
	p.mu.Lock()
	p.pos = &worldmap.Vec3d{X: v[0], Y: v[1], Z: v[2]}
	p.mu.Unlock()
	return nil
}

func main() {
	configPath := pflag.StringP("config", "c", "", "config file (default ./config.yaml)")
	url := pflag.String("url", "ws://127.0.0.1:8080/ws", "server websocket endpoint")
	uid := pflag.String("uid", "", "player uid, must match the token subject")
	token := pflag.String("token", os.Getenv("MAPPER_TOKEN"), "player token")
	backgroundPath := pflag.String("background", "", "map background texture (png)")
	pflag.Parse()

	conf := config.GetConfig()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("load config: ", err)
		}
		conf = c
	}
	if *uid == "" || *token == "" {
		log.Fatal("--uid and --token are required")
	}

	var background *worldmap.MapBackground
	if *backgroundPath != "" {
		b, err := worldmap.LoadMapBackground(*backgroundPath)
		if err != nil {
			log.Fatal("load background: ", err)
		}
		background = b
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := ws.Dial(ctx, *url, *token)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer conn.Close()

	player := &stdinPlayer{}
	client := service.NewMapClient(service.ClientOptions{
		Enabled:        conf.Mapper.Enabled,
		PlayerUID:      *uid,
		StoragePath:    filepath.Join(conf.Mapper.ClientDataDir, *uid+".mapcache"),
		BufferSize:     conf.Mapper.BufferSize,
		RedrawInterval: time.Duration(conf.Mapper.RedrawIntervalMs) * time.Millisecond,
		AutosaveAfter:  time.Duration(conf.Mapper.AutosaveSeconds * float64(time.Second)),
		OceanColor:     conf.Mapper.OceanColor,
		Language:       conf.Mapper.Language,
	}, service.ClientDeps{
		Sink:       conn,
		Notifier:   stdoutNotifier{},
		Background: background,
		Player:     player,
	})
	log.Info("map client status: ", client.Load())

	go func() {
		if err := conn.Run(ctx, client, stdoutNotifier{}); err != nil && ctx.Err() == nil {
			log.Error("connection closed: ", err)
		}
		stop()
	}()
	go readCommands(ctx, conn, player, command.NewClientMapper(client), conf.Mapper.Language)
	go tickLoop(ctx, client)

	if err := client.Run(ctx); err != nil {
		log.Error("save on exit: ", err)
	}
}

// readCommands 本地处理 /mapper 命令，其余行发给服务端
func readCommands(ctx context.Context, conn *ws.Conn, player *stdinPlayer, local *command.Dispatcher, language string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "/pos "); ok {
			if err := player.set(strings.Fields(rest)); err != nil {
				fmt.Println(err)
			}
			continue
		}
		if strings.HasPrefix(line, "/mapper ") {
			reply, _ := local.Execute(command.Caller{Language: language}, line)
			fmt.Println(reply)
			continue
		}
		if err := conn.SendCommand(line); err != nil {
			log.Error("send command: ", err)
			return
		}
	}
}

// tickLoop 按游戏 tick 更新最后已知位置
func tickLoop(ctx context.Context, client *service.MapClient) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.OnTick()
		}
	}
}
