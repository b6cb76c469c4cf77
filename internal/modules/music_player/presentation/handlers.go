package presentation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/bot"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/usecases"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
)

// maxQueueLines caps the number of upcoming tracks shown by /queue.
const maxQueueLines = 10

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	voiceChannel *usecases.VoiceChannelService
	player       *usecases.PlayerService
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(
	voiceChannel *usecases.VoiceChannelService,
	player *usecases.PlayerService,
) *CommandHandlers {
	return &CommandHandlers{
		voiceChannel: voiceChannel,
		player:       player,
	}
}

// interactionIDs extracts the commonly needed snowflakes from an interaction.
func interactionIDs(
	i *discordgo.InteractionCreate,
) (guildID, userID, channelID snowflake.ID, err error) {
	guildID, err = snowflake.Parse(i.GuildID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid guild ID: %w", err)
	}
	userID, err = snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid user ID: %w", err)
	}
	channelID, err = snowflake.Parse(i.ChannelID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid channel ID: %w", err)
	}
	return guildID, userID, channelID, nil
}

// HandleJoin handles the /join command.
func (h *CommandHandlers) HandleJoin(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, userID, notificationChannelID, err := interactionIDs(i)
	if err != nil {
		return respondError(r, err.Error())
	}

	var voiceChannelID snowflake.ID
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "channel" {
			voiceChannelID, err = snowflake.Parse(opt.ChannelValue(s).ID)
			if err != nil {
				return respondError(r, "Invalid voice channel")
			}
		}
	}

	output, err := h.voiceChannel.Join(ctx, usecases.JoinInput{
		GuildID:               guildID,
		UserID:                userID,
		NotificationChannelID: notificationChannelID,
		VoiceChannelID:        voiceChannelID,
	})
	if err != nil {
		return respondError(r, err.Error())
	}

	return respondSuccess(r, fmt.Sprintf("Connected to <#%d>.", output.VoiceChannelID))
}

// HandleLeave handles the /leave command.
func (h *CommandHandlers) HandleLeave(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if err := h.voiceChannel.Leave(ctx, guildID); err != nil {
		return respondError(r, err.Error())
	}

	return respondSuccess(r, "Disconnected.")
}

// HandlePlay handles the /play command.
func (h *CommandHandlers) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, userID, notificationChannelID, err := interactionIDs(i)
	if err != nil {
		return respondError(r, err.Error())
	}

	var (
		query   string
		shuffle bool
	)
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "query":
			query = opt.StringValue()
		case "shuffle":
			shuffle = opt.BoolValue()
		}
	}

	// Join the requester's voice channel if not already connected.
	_, err = h.voiceChannel.Join(ctx, usecases.JoinInput{
		GuildID:               guildID,
		UserID:                userID,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondError(r, err.Error())
	}

	// Metadata extraction can take a while, so acknowledge first.
	if err := r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return err
	}

	output, err := h.player.AddToQueue(ctx, usecases.AddToQueueInput{
		GuildID:               guildID,
		Locator:               query,
		RequesterID:           userID,
		RequesterName:         displayName(i.Member),
		NotificationChannelID: notificationChannelID,
		ShuffleAfter:          shuffle,
	})
	if err != nil {
		return followupError(r, err.Error())
	}

	var description string
	if output.Playlist != nil {
		description = fmt.Sprintf(
			"Added **%d tracks** from playlist **%s** to the queue.",
			len(output.Tracks),
			output.Playlist.Title,
		)
	} else {
		track := output.Tracks[0]
		description = fmt.Sprintf("Added [%s](%s) to the queue.", track.Title, track.PlaybackURL)
	}

	return r.Followup(&discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{
			{
				Description: description,
				Color:       colorSuccess,
			},
		},
	})
}

// HandlePause handles the /pause command, toggling pause and resume.
func (h *CommandHandlers) HandlePause(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	output, err := h.player.Pause(ctx, guildID)
	if err != nil {
		return respondError(r, err.Error())
	}

	if output.Paused {
		return respondSuccess(r, "Paused playback.")
	}
	return respondSuccess(r, "Resumed playback.")
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	var position int
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "position" {
			position = int(opt.IntValue())
		}
	}

	output, err := h.player.Skip(ctx, usecases.SkipInput{
		GuildID:  guildID,
		Position: position,
	})
	if err != nil {
		return respondError(r, err.Error())
	}

	if output.Stopped {
		return respondSuccess(r, "Skipped the last track; playback stopped.")
	}
	return respondSuccess(r, fmt.Sprintf("Skipped **%s**.", output.SkippedTrack.Title))
}

// HandleStop handles the /stop command.
func (h *CommandHandlers) HandleStop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if err := h.player.Stop(ctx, guildID); err != nil {
		return respondError(r, err.Error())
	}

	return respondSuccess(r, "Stopped playback and cleared the queue.")
}

// HandlePrevious handles the /previous command.
func (h *CommandHandlers) HandlePrevious(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	output, err := h.player.Previous(ctx, guildID)
	if err != nil {
		return respondError(r, err.Error())
	}

	return respondSuccess(r, fmt.Sprintf("Playing **%s** again.", output.Track.Title))
}

// HandleShuffle handles the /shuffle command.
func (h *CommandHandlers) HandleShuffle(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if err := h.player.Shuffle(ctx, guildID); err != nil {
		return respondError(r, err.Error())
	}

	return respondSuccess(r, "Shuffled the queue.")
}

// HandleLoop handles the /loop command.
func (h *CommandHandlers) HandleLoop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	output, err := h.player.CycleLoopMode(guildID)
	if err != nil {
		return respondError(r, err.Error())
	}

	var description string
	switch output.NewMode {
	case domain.LoopSong:
		description = "Looping the current song. \U0001F502"
	case domain.LoopQueue:
		description = "Looping the queue. \U0001F501"
	default:
		description = "Loop disabled."
	}

	return respondSuccess(r, description)
}

// HandleQueue handles the /queue command.
func (h *CommandHandlers) HandleQueue(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	snapshot, err := h.player.GetQueue(guildID)
	if err != nil {
		return respondError(r, err.Error())
	}

	title := "Queue"
	switch snapshot.LoopMode {
	case domain.LoopSong:
		title = "Queue \U0001F502" // 🔂
	case domain.LoopQueue:
		title = "Queue \U0001F501" // 🔁
	}

	embed := &discordgo.MessageEmbed{Title: title}

	if snapshot.Current == nil && len(snapshot.Upcoming) == 0 {
		embed.Description = "Queue is empty."
	} else {
		embed.Description = buildQueueDescription(snapshot)
	}

	if len(snapshot.History) > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d track(s) in history", len(snapshot.History)),
		}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func buildQueueDescription(snapshot *usecases.QueueSnapshot) string {
	var sb strings.Builder

	if snapshot.Current != nil {
		verb := "Now Playing"
		if snapshot.State == domain.StatePaused {
			verb = "Paused"
		}
		fmt.Fprintf(&sb, "### %s\n", verb)
		fmt.Fprintf(&sb, "[%s](%s) `%s / %s`\n",
			snapshot.Current.Title,
			snapshot.Current.PlaybackURL,
			snapshot.Current.ElapsedString(time.Now().UTC()),
			snapshot.Current.FormattedDuration(),
		)
	}

	if len(snapshot.Upcoming) > 0 {
		sb.WriteString("### Up Next\n")
		for i, track := range snapshot.Upcoming {
			if i == maxQueueLines {
				fmt.Fprintf(&sb, "…and %d more.\n", len(snapshot.Upcoming)-maxQueueLines)
				break
			}
			fmt.Fprintf(&sb, "%d. [%s](%s) `%s`\n",
				i+1, track.Title, track.PlaybackURL, track.FormattedDuration())
		}
	}

	return sb.String()
}

func displayName(member *discordgo.Member) string {
	if member == nil || member.User == nil {
		return "Unknown"
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}

func respondSuccess(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: message,
					Color:       colorSuccess,
				},
			},
		},
	})
}

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Error",
					Description: message,
					Color:       colorError,
				},
			},
		},
	})
}

func followupError(r bot.Responder, message string) error {
	return r.Followup(&discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       "Error",
				Description: message,
				Color:       colorError,
			},
		},
	})
}
