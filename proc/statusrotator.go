package proc

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"

	"github.com/leeineian/hibiki/sys"
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client bot.Client) {
		sys.RegisterDaemon(sys.LogStatusRotator, func(ctx context.Context) (bool, func(), func()) {
			return true, func() { runStatusRotator(ctx, client) }, nil
		})
	})
}

func GetRotationInterval() time.Duration {
	return time.Duration(15+rand.Intn(46)) * time.Second
}

var (
	startTime       = time.Now().UTC()
	lastStatusText  string
	configKeyStatus = "status_visible"
)

var statusGenerators = []func(context.Context, bot.Client) string{
	getNowPlayingStatus,
	getQueueStatus,
	getUptimeStatus,
	getLatencyStatus,
	getTimeStatus,
}

func runStatusRotator(ctx context.Context, client bot.Client) {
	for {
		next := GetRotationInterval()
		updateStatus(ctx, client, next)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func updateStatus(ctx context.Context, client bot.Client, nextInterval time.Duration) {
	visibleStr, err := sys.GetBotConfig(ctx, configKeyStatus)
	if err != nil || visibleStr == "false" {
		_ = client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	// 1. Gather all non-empty statuses
	var availableStatuses []string
	for _, gen := range statusGenerators {
		if text := gen(ctx, client); text != "" {
			availableStatuses = append(availableStatuses, text)
		}
	}

	// 2. Fallback to Uptime if everything is empty
	if len(availableStatuses) == 0 {
		availableStatuses = append(availableStatuses, getUptimeStatus(ctx, client))
	}

	// 3. Filter out the last shown status to prevent repeats
	var finalChoices []string
	for _, s := range availableStatuses {
		if s != lastStatusText {
			finalChoices = append(finalChoices, s)
		}
	}

	// 4. Pick a status
	var selectedStatus string
	if len(finalChoices) > 0 {
		selectedStatus = finalChoices[rand.Intn(len(finalChoices))]
	} else {
		selectedStatus = availableStatuses[0]
	}
	lastStatusText = selectedStatus

	err = client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithStreamingActivity(selectedStatus, sys.GlobalConfig.StreamingURL),
	)

	if err != nil {
		sys.LogStatusRotator(sys.MsgStatusUpdateFail, err)
	} else if nextInterval > 0 {
		sys.LogStatusRotator(sys.MsgStatusRotated, selectedStatus, nextInterval)
	} else {
		sys.LogStatusRotator(sys.MsgStatusRotatedNoInterval, selectedStatus)
	}
}

// Generators

func getNowPlayingStatus(ctx context.Context, client bot.Client) string {
	ps := GetPlayerManager()
	if ps == nil {
		return ""
	}
	active := ps.Active()
	if len(active) == 0 {
		return ""
	}
	return "♪ " + TruncateCenter(active[rand.Intn(len(active))].Title, 100)
}

func getQueueStatus(ctx context.Context, client bot.Client) string {
	ps := GetPlayerManager()
	if ps == nil {
		return ""
	}
	total := 0
	for _, id := range ps.GuildIDs() {
		if p := ps.Get(id); p != nil {
			total += p.QueueLen()
		}
	}
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("Queue: %d track(s)", total)
}

func getUptimeStatus(ctx context.Context, client bot.Client) string {
	uptime := time.Since(startTime)
	return fmt.Sprintf("Uptime: %dh %dm %ds", int(uptime.Hours()), int(uptime.Minutes())%60, int(uptime.Seconds())%60)
}

func getLatencyStatus(ctx context.Context, client bot.Client) string {
	ping := client.Gateway.Latency()
	if ping == 0 {
		return ""
	}
	return fmt.Sprintf("Ping: %dms", ping.Milliseconds())
}

func getTimeStatus(ctx context.Context, client bot.Client) string {
	return "Time: " + time.Now().Local().Format("15:04:05") + " (Local)"
}
