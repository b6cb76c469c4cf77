package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// AdvanceOverride controls what the next idle transition does with the
// queue front. The normal path archives the finished track to history;
// skip and previous already arranged the queue themselves and must not
// archive or drop anything.
type AdvanceOverride int

const (
	AdvanceArchive  AdvanceOverride = iota // natural completion: archive and drop the front
	AdvanceSkip                            // explicit skip: skipped entries already discarded
	AdvancePrevious                        // previous(): restored track sits at the front
)

// PlayerState holds everything the player tracks for one guild:
// the queue, the history, the loop mode and the persisted playback state.
// It is not safe for concurrent use; the player serializes access per guild.
type PlayerState struct {
	guildID               snowflake.ID
	voiceChannelID        snowflake.ID // voice channel the sink is connected to
	notificationChannelID snowflake.ID // text channel for notifications

	Queue   Queue
	History History

	status   PlaybackState
	loopMode LoopMode
	override AdvanceOverride
}

// NewPlayerState creates a PlayerState for the given guild and channels.
// historySize <= 0 falls back to DefaultHistorySize.
func NewPlayerState(guildID, voiceChannelID, notificationChannelID snowflake.ID, historySize int) *PlayerState {
	return &PlayerState{
		guildID:               guildID,
		voiceChannelID:        voiceChannelID,
		notificationChannelID: notificationChannelID,
		Queue:                 NewQueue(),
		History:               NewHistory(historySize),
		status:                StateIdle,
		loopMode:              LoopDisabled,
	}
}

// GuildID returns the guild ID. It must not change after construction.
func (p *PlayerState) GuildID() snowflake.ID {
	return p.guildID
}

// VoiceChannelID returns the connected voice channel ID.
func (p *PlayerState) VoiceChannelID() snowflake.ID {
	return p.voiceChannelID
}

// SetVoiceChannelID updates the voice channel ID.
func (p *PlayerState) SetVoiceChannelID(channelID snowflake.ID) {
	p.voiceChannelID = channelID
}

// NotificationChannelID returns the text channel for notifications.
func (p *PlayerState) NotificationChannelID() snowflake.ID {
	return p.notificationChannelID
}

// SetNotificationChannelID updates the notification channel ID.
func (p *PlayerState) SetNotificationChannelID(channelID snowflake.ID) {
	p.notificationChannelID = channelID
}

// Status returns the persisted playback state.
func (p *PlayerState) Status() PlaybackState {
	return p.status
}

// SetStatus sets the persisted playback state.
func (p *PlayerState) SetStatus(status PlaybackState) {
	p.status = status
}

// CurrentTrack returns the queue front while playback is active,
// or nil when idle or the queue is empty.
func (p *PlayerState) CurrentTrack() *Track {
	if p.status == StateIdle {
		return nil
	}
	return p.Queue.Front()
}

// LoopMode returns the current loop mode.
func (p *PlayerState) LoopMode() LoopMode {
	return p.loopMode
}

// SetLoopMode sets the loop mode.
func (p *PlayerState) SetLoopMode(mode LoopMode) {
	p.loopMode = mode
}

// CycleLoopMode advances the loop mode and returns the new value.
func (p *PlayerState) CycleLoopMode() LoopMode {
	p.loopMode = p.loopMode.Cycle()
	return p.loopMode
}

// SetOverride arms the advance override for the next idle transition.
func (p *PlayerState) SetOverride(override AdvanceOverride) {
	p.override = override
}

// TakeOverride returns the armed override and resets it to AdvanceArchive.
func (p *PlayerState) TakeOverride() AdvanceOverride {
	override := p.override
	p.override = AdvanceArchive
	return override
}
