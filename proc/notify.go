package proc

import (
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/leeineian/hibiki/sys"
)

// Notifier posts playback announcements to the guild's command channel.
// Tests substitute a recording fake.
type Notifier interface {
	// Status posts a plain text notice.
	Status(channelID snowflake.ID, content string)
	// NowPlaying posts the now-playing card and returns its message ID so
	// it can be deleted when the track ends, 0 when nothing was posted.
	NowPlaying(channelID snowflake.ID, t Track, volume int, looping bool) snowflake.ID
	DeleteMessage(channelID, messageID snowflake.ID)
}

const embedColorPlaying = 0x5865F2

// discordNotifier sends over the REST API. Announcements are fire-and-forget
// and rate limited locally so a misbehaving queue cannot spam a channel.
type discordNotifier struct {
	client  bot.Client
	limiter *rate.Limiter
}

func NewDiscordNotifier(client bot.Client) Notifier {
	return &discordNotifier{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (n *discordNotifier) Status(channelID snowflake.ID, content string) {
	if channelID == 0 || !n.limiter.Allow() {
		return
	}
	_, err := n.client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
	if err != nil {
		sys.LogVoice("Failed to send status message to channel %s: %v", channelID, err)
	}
}

func (n *discordNotifier) NowPlaying(channelID snowflake.ID, t Track, volume int, looping bool) snowflake.ID {
	if channelID == 0 || !n.limiter.Allow() {
		return 0
	}

	loopState := "Off"
	if looping {
		loopState = "On"
	}
	embed := discord.Embed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("[%s](%s)", TruncateCenter(t.Title, 200), t.PageURL),
		Color:       embedColorPlaying,
		Fields: []discord.EmbedField{
			{Name: "Duration", Value: FormatDuration(t.Duration), Inline: boolPtr(true)},
			{Name: "Uploader", Value: t.Uploader, Inline: boolPtr(true)},
			{Name: "Requested by", Value: fmt.Sprintf("<@%s>", t.Requester), Inline: boolPtr(true)},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", volume), Inline: boolPtr(true)},
			{Name: "Loop", Value: loopState, Inline: boolPtr(true)},
		},
	}
	if t.ThumbnailURL != "" {
		embed.Thumbnail = &discord.EmbedResource{URL: t.ThumbnailURL}
	}

	msg, err := n.client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetEmbeds(embed).
		Build())
	if err != nil {
		sys.LogVoice("Failed to send now-playing message to channel %s: %v", channelID, err)
		return 0
	}
	return msg.ID
}

func (n *discordNotifier) DeleteMessage(channelID, messageID snowflake.ID) {
	if channelID == 0 || messageID == 0 {
		return
	}
	_ = n.client.Rest.DeleteMessage(channelID, messageID)
}

func boolPtr(b bool) *bool { return &b }
