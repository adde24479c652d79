package home

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hibiki/proc"
	"github.com/leeineian/hibiki/sys"
)

func handleMusicJoin(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	ps := proc.GetPlayerManager()
	if ps == nil {
		replyEphemeral(event, sys.UserMsgResolveFail)
		return
	}

	channelID, err := userVoiceChannel(event)
	if err != nil {
		replyEphemeral(event, userErrorMessage(err))
		return
	}

	guildID := *event.GuildID()
	if p := ps.Get(guildID); p != nil && p.ChannelID() == channelID {
		replyEphemeral(event, sys.UserMsgAlreadyHere)
		return
	}

	_ = event.DeferCreateMessage(false)
	if _, err = ps.Join(context.Background(), guildID, channelID, event.Channel().ID()); err != nil {
		followUp(event, userErrorMessage(err))
		return
	}
	followUp(event, sys.UserMsgJoined)
}

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	ps := proc.GetPlayerManager()
	if ps == nil {
		replyEphemeral(event, sys.UserMsgResolveFail)
		return
	}

	channelID, verr := userVoiceChannel(event)
	if verr != nil {
		replyEphemeral(event, userErrorMessage(verr))
		return
	}
	query, _ := data.OptString("query")

	// Resolution can take seconds; defer immediately.
	_ = event.DeferCreateMessage(false)

	guildID := *event.GuildID()
	p, err := ps.Join(context.Background(), guildID, channelID, event.Channel().ID())
	if err != nil {
		followUp(event, userErrorMessage(err))
		return
	}

	tracks, err := ps.ResolveTracks(context.Background(), query, event.User().ID)
	if err != nil {
		sys.LogResolver(sys.MsgResolverExtractFail, query, err)
		followUp(event, userErrorMessage(err))
		return
	}

	added := p.Enqueue(tracks)
	switch {
	case added == 0:
		followUp(event, fmt.Sprintf(sys.UserMsgQueueFull, p.QueueCap()))
	case added < len(tracks):
		followUp(event, fmt.Sprintf(sys.UserMsgQueueFullPartial, added, len(tracks)-added))
	case added == 1:
		t := tracks[0]
		followUp(event, fmt.Sprintf("✅ "+sys.UserMsgQueuedOne, fmt.Sprintf("[%s](%s)", t.Title, t.PageURL)))
	default:
		followUp(event, fmt.Sprintf("✅ "+sys.UserMsgQueuedMany, added))
	}
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	query := focused.String()
	if query == "" {
		_ = event.AutocompleteResult(nil)
		return
	}

	ps := proc.GetPlayerManager()
	if ps == nil {
		_ = event.AutocompleteResult(nil)
		return
	}
	results, err := ps.SearchTracks(query)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	var choices []discord.AutocompleteChoice
	for i, r := range results {
		if i >= 25 {
			break
		}
		name := r.Title
		if len(name) > 100 {
			name = name[:97] + "..."
		}
		val := r.URL
		if len(val) > 100 {
			val = name
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  name,
			Value: val,
		})
	}
	_ = event.AutocompleteResult(choices)
}

// --- Shared helpers ---

func userVoiceChannel(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, error) {
	if event.GuildID() == nil || event.Member() == nil {
		return 0, proc.ErrUserNotInChannel
	}
	voiceState, ok := event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID)
	if !ok || voiceState.ChannelID == nil {
		return 0, proc.ErrUserNotInChannel
	}
	return *voiceState.ChannelID, nil
}

func replyEphemeral(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build())
}

func reply(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
}

func followUp(event *events.ApplicationCommandInteractionCreate, content string) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetContent(content).
		Build())
}

func userErrorMessage(err error) string {
	switch {
	case errors.Is(err, proc.ErrUserNotInChannel):
		return sys.UserMsgNotInVoice
	case errors.Is(err, proc.ErrBusyElsewhere):
		return sys.UserMsgBusyElsewhere
	case errors.Is(err, proc.ErrConnectTimeout):
		return sys.UserMsgConnectTimeout
	case errors.Is(err, proc.ErrConnectFailed):
		return sys.UserMsgConnectFail
	case errors.Is(err, proc.ErrNotConnected):
		return sys.UserMsgNotConnected
	case errors.Is(err, proc.ErrNothingPlaying):
		return sys.UserMsgNothingPlaying
	case errors.Is(err, proc.ErrNoCurrentTrack):
		return sys.UserMsgNoCurrentTrack
	case errors.Is(err, proc.ErrNoResults):
		return sys.UserMsgNoResults
	case errors.Is(err, proc.ErrUnavailable):
		return sys.UserMsgUnavailable
	case errors.Is(err, proc.ErrUnsupportedSource):
		return sys.UserMsgUnsupportedSource
	case errors.Is(err, proc.ErrTrackTooLong):
		return fmt.Sprintf(sys.UserMsgTrackTooLong, proc.FormatDuration(sys.GlobalConfig.MaxTrackDuration))
	case errors.Is(err, proc.ErrPlaylistsDisabled):
		return sys.UserMsgPlaylistsDisabled
	case errors.Is(err, proc.ErrBadPosition):
		return sys.UserMsgBadPosition
	case errors.Is(err, proc.ErrVolumeOutOfRange):
		return fmt.Sprintf(sys.UserMsgVolumeRange, sys.VolumeMin, sys.VolumeMax)
	default:
		return sys.UserMsgResolveFail
	}
}
