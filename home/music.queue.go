package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hibiki/proc"
	"github.com/leeineian/hibiki/sys"
)

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := guildPlayer(event)
	if p == nil {
		return
	}

	current, playing := p.Current()
	pending := p.Queue()
	if !playing && len(pending) == 0 {
		replyEphemeral(event, sys.UserMsgQueueEmpty)
		return
	}

	var b strings.Builder
	if playing {
		b.WriteString(fmt.Sprintf("**Now playing:** [%s](%s) `%s`",
			proc.TruncateCenter(current.Title, 80), current.PageURL, proc.FormatDuration(current.Duration)))
		if p.Loop() {
			b.WriteString(" 🔂")
		}
		b.WriteString("\n")
	}

	limit := sys.GlobalConfig.QueueDisplayLimit
	for i, t := range pending {
		if i >= limit {
			b.WriteString(fmt.Sprintf("...and %d more.\n", len(pending)-limit))
			break
		}
		b.WriteString(fmt.Sprintf("`%d.` [%s](%s) `%s`\n",
			i+1, proc.TruncateCenter(t.Title, 80), t.PageURL, proc.FormatDuration(t.Duration)))
	}
	b.WriteString(fmt.Sprintf("\n%d/%d track(s) queued.", len(pending), p.QueueCap()))

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetEmbeds(discord.Embed{
			Title:       "Queue",
			Description: b.String(),
			Color:       0x5865F2,
		}).
		Build())
}

func handleMusicRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := guildPlayer(event)
	if p == nil {
		return
	}
	position, _ := data.OptInt("position")
	removed, err := p.RemoveAt(position)
	if err != nil {
		replyEphemeral(event, userErrorMessage(err))
		return
	}
	reply(event, fmt.Sprintf("🗑️ "+sys.UserMsgRemoved, proc.TruncateCenter(removed.Title, 80)))
}

func handleMusicNowPlaying(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := guildPlayer(event)
	if p == nil {
		return
	}
	current, playing := p.Current()
	if !playing {
		replyEphemeral(event, sys.UserMsgNothingPlaying)
		return
	}

	loopState := "Off"
	if p.Loop() {
		loopState = "On"
	}
	embed := discord.Embed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("[%s](%s)", proc.TruncateCenter(current.Title, 200), current.PageURL),
		Color:       0x5865F2,
		Fields: []discord.EmbedField{
			{Name: "Duration", Value: proc.FormatDuration(current.Duration), Inline: boolPtr(true)},
			{Name: "Uploader", Value: current.Uploader, Inline: boolPtr(true)},
			{Name: "Requested by", Value: fmt.Sprintf("<@%s>", current.Requester), Inline: boolPtr(true)},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", p.Volume()), Inline: boolPtr(true)},
			{Name: "Loop", Value: loopState, Inline: boolPtr(true)},
		},
	}
	if current.ThumbnailURL != "" {
		embed.Thumbnail = &discord.EmbedResource{URL: current.ThumbnailURL}
	}

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetEmbeds(embed).
		Build())
}

func boolPtr(b bool) *bool { return &b }
