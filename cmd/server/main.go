package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/erlancarreira/nitrogame-sub001/internal/logging"
	"github.com/erlancarreira/nitrogame-sub001/internal/server"
)

func main() {
	// 命令行参数
	address := flag.String("addr", ":8080", "服务器监听地址")
	laps := flag.Int("laps", 3, "比赛圈数")
	logLevel := flag.String("log-level", "info", "日志级别 (debug/info/warn/error)")
	logFile := flag.String("log-file", "", "日志文件路径（空则只输出到控制台）")
	flag.Parse()

	log := logging.New(logging.Config{
		Level:   *logLevel,
		File:    *logFile,
		Console: true,
	})
	defer log.Sync()

	gameServer, err := server.NewGameServer(server.Config{
		Addr:      *address,
		TotalLaps: *laps,
	}, log)
	if err != nil {
		log.Fatalw("创建服务器失败", "err", err)
	}

	if err := gameServer.Start(); err != nil {
		log.Fatalw("服务器启动失败", "err", err)
	}

	log.Infow("竞速服务器运行中",
		"addr", *address,
		"laps", *laps,
		"maxPlayers", server.MaxPlayers,
		"tps", server.ServerTPS,
	)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Infow("收到退出信号，正在关闭服务器")
	gameServer.Shutdown()
}
