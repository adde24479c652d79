package home

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hibiki/proc"
	"github.com/leeineian/hibiki/sys"
)

// guildPlayer resolves the invoking guild's player, replying on failure.
// Returns nil when the handler should bail out.
func guildPlayer(event *events.ApplicationCommandInteractionCreate) *proc.Player {
	ps := proc.GetPlayerManager()
	if ps == nil || event.GuildID() == nil {
		replyEphemeral(event, sys.UserMsgNotConnected)
		return nil
	}
	p := ps.Get(*event.GuildID())
	if p == nil {
		replyEphemeral(event, sys.UserMsgNotConnected)
		return nil
	}
	return p
}

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := guildPlayer(event)
	if p == nil {
		return
	}
	if err := p.Skip(); err != nil {
		replyEphemeral(event, userErrorMessage(err))
		return
	}
	reply(event, "⏭️ "+sys.UserMsgSkipped)
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	ps := proc.GetPlayerManager()
	if ps == nil || event.GuildID() == nil {
		replyEphemeral(event, sys.UserMsgNotConnected)
		return
	}
	cleared, err := ps.Stop(context.Background(), *event.GuildID())
	if err != nil {
		replyEphemeral(event, userErrorMessage(err))
		return
	}
	reply(event, fmt.Sprintf("🛑 "+sys.UserMsgStopped, cleared))
}

func handleMusicLeave(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	ps := proc.GetPlayerManager()
	if ps == nil || event.GuildID() == nil || ps.Get(*event.GuildID()) == nil {
		replyEphemeral(event, sys.UserMsgNotConnected)
		return
	}
	ps.Leave(context.Background(), *event.GuildID(), "leave command")
	reply(event, "👋 "+sys.UserMsgLeft)
}

func handleMusicLoop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := guildPlayer(event)
	if p == nil {
		return
	}
	on, ok := data.OptBool("enabled")
	if !ok {
		on = !p.Loop()
	}
	if err := p.SetLoop(on); err != nil {
		replyEphemeral(event, userErrorMessage(err))
		return
	}
	if on {
		reply(event, "🔂 "+sys.UserMsgLoopOn)
	} else {
		reply(event, sys.UserMsgLoopOff)
	}
}

func handleMusicVolume(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p := guildPlayer(event)
	if p == nil {
		return
	}
	percent, _ := data.OptInt("percent")
	if err := p.SetVolume(percent); err != nil {
		replyEphemeral(event, userErrorMessage(err))
		return
	}
	reply(event, fmt.Sprintf("🔊 "+sys.UserMsgVolumeSet, percent))
}
