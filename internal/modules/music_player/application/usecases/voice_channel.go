package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

// JoinInput contains the input for the Join use case.
type JoinInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	NotificationChannelID snowflake.ID
	VoiceChannelID        snowflake.ID // Optional: 0 means use the user's channel
}

// JoinOutput contains the result of the Join use case.
type JoinOutput struct {
	VoiceChannelID snowflake.ID
}

// VoiceChannelService manages the sink connection lifecycle per guild.
type VoiceChannelService struct {
	repo        domain.PlayerStateRepository
	sink        ports.AudioSink
	voiceState  ports.VoiceStateProvider
	historySize int
}

// NewVoiceChannelService creates a new VoiceChannelService.
func NewVoiceChannelService(
	repo domain.PlayerStateRepository,
	sink ports.AudioSink,
	voiceState ports.VoiceStateProvider,
	historySize int,
) *VoiceChannelService {
	return &VoiceChannelService{
		repo:        repo,
		sink:        sink,
		voiceState:  voiceState,
		historySize: historySize,
	}
}

// Join connects the sink to a voice channel and creates the guild's
// player state if none exists yet.
func (v *VoiceChannelService) Join(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	existing := v.repo.Get(input.GuildID)

	voiceChannelID := input.VoiceChannelID
	if voiceChannelID == 0 {
		userChannel, err := v.voiceState.GetUserVoiceChannel(input.GuildID, input.UserID)
		if err != nil {
			return nil, err
		}
		if userChannel == nil {
			return nil, ErrUserNotInVoice
		}
		voiceChannelID = *userChannel
	}

	// Already connected to the same channel: just refresh the notification channel.
	if existing != nil && existing.VoiceChannelID() == voiceChannelID {
		if input.NotificationChannelID != 0 {
			existing.SetNotificationChannelID(input.NotificationChannelID)
		}
		return &JoinOutput{VoiceChannelID: voiceChannelID}, nil
	}

	if err := v.sink.Open(ctx, input.GuildID, voiceChannelID); err != nil {
		return nil, err
	}

	if existing != nil {
		// Moving channels: queue and history survive.
		existing.SetVoiceChannelID(voiceChannelID)
		if input.NotificationChannelID != 0 {
			existing.SetNotificationChannelID(input.NotificationChannelID)
		}
	} else {
		state := domain.NewPlayerState(
			input.GuildID,
			voiceChannelID,
			input.NotificationChannelID,
			v.historySize,
		)
		v.repo.Save(state)
	}

	return &JoinOutput{VoiceChannelID: voiceChannelID}, nil
}

// Leave releases the sink connection and deletes the player state.
func (v *VoiceChannelService) Leave(ctx context.Context, guildID snowflake.ID) error {
	state := v.repo.Get(guildID)
	if state == nil {
		return ErrNotConnected
	}

	if err := v.sink.Release(ctx, guildID); err != nil {
		return err
	}
	v.repo.Delete(guildID)
	return nil
}

// HandleBotVoiceStateChange reacts to external voice state changes:
// the bot being moved between channels or disconnected by a user.
func (v *VoiceChannelService) HandleBotVoiceStateChange(
	guildID snowflake.ID,
	newChannelID *snowflake.ID,
) {
	state := v.repo.Get(guildID)
	if state == nil {
		return
	}

	if newChannelID == nil {
		v.repo.Delete(guildID)
		return
	}

	if *newChannelID != state.VoiceChannelID() {
		state.SetVoiceChannelID(*newChannelID)
	}
}
