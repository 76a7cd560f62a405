package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erlancarreira/nitrogame-sub001/internal/client"
	"github.com/erlancarreira/nitrogame-sub001/internal/logging"
	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

// 无头竞速客户端：连接服务器、巡线自动驾驶、跑完整场比赛。
// 渲染层在别的仓库，这个二进制用来联调服务器和压测网络管线。
func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "服务器地址")
	proto := flag.String("proto", "kcp", "传输协议 (kcp/tcp)")
	name := flag.String("name", "racer", "玩家昵称")
	color := flag.String("color", "red", "车辆涂装")
	raceID := flag.String("race", "", "比赛房间 ID（空则加入默认房间）")
	logLevel := flag.String("log-level", "info", "日志级别")
	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, Console: true})
	defer log.Sync()

	network := client.NewNetworkClient(*addr, *proto, log)
	if err := network.Connect(*name, *color, *raceID); err != nil {
		log.Fatalw("连接失败", "err", err)
	}
	defer network.Close()

	rc := client.NewRaceClient(network, *name, log)

	// 巡线驾驶器复用握手下发的参考线
	var track *core.Track
	if info := network.JoinInfo(); len(info.Track) > 0 {
		if t, err := core.NewTrack(protocol.MsgToTrackPoints(info.Track), info.TotalLaps); err == nil {
			track = t
		}
	}
	pilot := client.NewAutopilot(track)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / core.TPS)
	defer ticker.Stop()

	lastReport := time.Now()
	for {
		select {
		case <-sigChan:
			log.Infow("收到退出信号")
			return

		case now := <-ticker.C:
			out := rc.Tick(pilot.Decide(rc.Predictor().State()), now)

			if now.Sub(lastReport) >= 2*time.Second {
				lastReport = now
				printStandings(out, network.RTT())
			}

			if out.RaceOver {
				log.Infow("比赛结束")
				printStandings(out, network.RTT())
				return
			}
		}
	}
}

func printStandings(out client.FrameOutput, rtt int64) {
	fmt.Printf("--- lap %d  progress %.2f  speed %.1f  rtt %dms ---\n",
		out.Local.Lap, out.Local.LapProgress, out.Local.Speed, rtt)
	for _, s := range out.Standings {
		status := fmt.Sprintf("lap %d (%.2f)", s.Lap, s.Progress)
		if s.Finished {
			status = "完赛"
		}
		fmt.Printf("  #%d  %-12s %s\n", s.Rank, s.Name, status)
	}
}
