package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

// DefaultFetchConcurrency bounds the parallel metadata fetches during
// playlist expansion.
const DefaultFetchConcurrency = 4

// AddToQueueInput contains the input for the AddToQueue use case.
type AddToQueueInput struct {
	GuildID               snowflake.ID
	Locator               string // URL, playlist URL or free-text search term
	RequesterID           snowflake.ID
	RequesterName         string
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
	ShuffleAfter          bool         // Shuffle the queue after insertion, before playback
}

// AddToQueueOutput contains the result of the AddToQueue use case.
type AddToQueueOutput struct {
	Tracks   []*domain.Track
	Playlist *domain.PlaylistMembership // nil for single-track additions
}

// SkipInput contains the input for the Skip use case.
type SkipInput struct {
	GuildID  snowflake.ID
	Position int // 1-based target position; 0 means skip to the next track
}

// SkipOutput contains the result of the Skip use case.
type SkipOutput struct {
	SkippedTrack *domain.Track
	Stopped      bool // true when the single-track queue delegated to Stop
}

// PauseOutput contains the result of the Pause use case.
type PauseOutput struct {
	Paused bool // post-call state: true when playback is actually suspended
}

// PreviousOutput contains the result of the Previous use case.
type PreviousOutput struct {
	Track *domain.Track // the restored track now playing
}

// CycleLoopModeOutput contains the result of the CycleLoopMode use case.
type CycleLoopModeOutput struct {
	NewMode domain.LoopMode
}

// QueueSnapshot is a read-only view of a guild's player.
type QueueSnapshot struct {
	State    domain.PlaybackState
	LoopMode domain.LoopMode
	Current  *domain.Track
	Upcoming []*domain.Track
	History  []*domain.Track
}

// PlayerService is the per-guild playback queue engine. It owns the
// ordered track list, the history, the loop mode and the playback state,
// drives the audio sink and publishes lifecycle events.
//
// All operations on one guild are serialized through a per-guild mutex;
// sink status callbacks go through the same mutex, so every external
// notification is processed as one command at a time.
type PlayerService struct {
	repo      domain.PlayerStateRepository
	provider  ports.MetadataProvider
	sink      ports.AudioSink
	publisher ports.EventPublisher

	fetchConcurrency int

	locksMu sync.Mutex
	locks   map[snowflake.ID]*sync.Mutex
}

// NewPlayerService creates a new PlayerService.
// fetchConcurrency <= 0 falls back to DefaultFetchConcurrency.
func NewPlayerService(
	repo domain.PlayerStateRepository,
	provider ports.MetadataProvider,
	sink ports.AudioSink,
	publisher ports.EventPublisher,
	fetchConcurrency int,
) *PlayerService {
	if fetchConcurrency <= 0 {
		fetchConcurrency = DefaultFetchConcurrency
	}
	return &PlayerService{
		repo:             repo,
		provider:         provider,
		sink:             sink,
		publisher:        publisher,
		fetchConcurrency: fetchConcurrency,
		locks:            make(map[snowflake.ID]*sync.Mutex),
	}
}

// guildLock returns the serialization mutex for one guild.
func (s *PlayerService) guildLock(guildID snowflake.ID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[guildID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[guildID] = mu
	}
	return mu
}

func (s *PlayerService) publish(event domain.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

// AddToQueue classifies the locator, resolves it to one or more tracks via
// the metadata provider, inserts them and starts playback if idle.
// Playlist members that fail to resolve are skipped; each failure is
// surfaced as an Error event.
func (s *PlayerService) AddToQueue(
	ctx context.Context,
	input AddToQueueInput,
) (*AddToQueueOutput, error) {
	locator := domain.ParseLocator(input.Locator)
	if !locator.IsValid() {
		return nil, ErrEmptyQuery
	}
	if s.repo.Get(input.GuildID) == nil {
		return nil, ErrNotConnected
	}

	// Metadata extraction blocks on the external tool, so it runs before
	// the guild lock is taken.
	var (
		tracks   []*domain.Track
		playlist *domain.PlaylistMembership
		err      error
	)
	if locator.Kind == domain.LocatorPlaylistURL {
		tracks, playlist, err = s.expandPlaylist(ctx, input, locator)
	} else {
		tracks, err = s.fetchSingle(ctx, input, locator)
	}
	if err != nil {
		return nil, err
	}

	mu := s.guildLock(input.GuildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(input.GuildID)
	if state == nil {
		return nil, ErrNotConnected
	}
	if input.NotificationChannelID != 0 {
		state.SetNotificationChannelID(input.NotificationChannelID)
	}

	state.Queue.Append(tracks...)

	if playlist != nil {
		s.publish(domain.Event{
			Kind:    domain.EventPlaylistAdded,
			GuildID: input.GuildID,
			Tracks:  tracks,
		})
	} else {
		s.publish(domain.Event{
			Kind:    domain.EventSongAdded,
			GuildID: input.GuildID,
			Track:   tracks[0],
		})
	}

	if input.ShuffleAfter {
		s.shuffleLocked(state)
	}

	if err := s.playLocked(ctx, state); err != nil {
		return nil, err
	}

	return &AddToQueueOutput{Tracks: tracks, Playlist: playlist}, nil
}

// fetchSingle resolves a plain URL or search term to exactly one track.
func (s *PlayerService) fetchSingle(
	ctx context.Context,
	input AddToQueueInput,
	locator domain.Locator,
) ([]*domain.Track, error) {
	meta, err := s.provider.FetchTrack(ctx, locator.ProviderQuery())
	if err != nil {
		perr := providerError(locator.Raw, err)
		s.publish(domain.Event{Kind: domain.EventError, GuildID: input.GuildID, Err: perr})
		return nil, perr
	}

	track := buildTrack(meta, input, nil)
	if !track.IsValid() {
		perr := providerError(locator.Raw, ErrIncompleteMetadata)
		s.publish(domain.Event{Kind: domain.EventError, GuildID: input.GuildID, Err: perr})
		return nil, perr
	}
	return []*domain.Track{track}, nil
}

// expandPlaylist enumerates the playlist and fetches member metadata
// concurrently, preserving the provider-returned order regardless of
// fetch-completion order. Unresolvable members are skipped.
func (s *PlayerService) expandPlaylist(
	ctx context.Context,
	input AddToQueueInput,
	locator domain.Locator,
) ([]*domain.Track, *domain.PlaylistMembership, error) {
	playlistMeta, err := s.provider.FetchPlaylist(ctx, locator.Raw)
	if err != nil {
		perr := providerError(locator.Raw, err)
		s.publish(domain.Event{Kind: domain.EventError, GuildID: input.GuildID, Err: perr})
		return nil, nil, perr
	}

	trackCount := playlistMeta.TrackCount
	if trackCount == 0 {
		trackCount = len(playlistMeta.Entries)
	}
	membership := &domain.PlaylistMembership{
		ID:         playlistMeta.ID,
		Title:      playlistMeta.Title,
		Uploader:   playlistMeta.Uploader,
		ChannelID:  playlistMeta.ChannelID,
		URL:        playlistMeta.WebpageURL,
		TrackCount: trackCount,
	}

	// Fan-out with bounded concurrency; results are reassembled by index
	// so the playlist order survives.
	metas := make([]*ports.TrackMetadata, len(playlistMeta.Entries))
	errs := make([]error, len(playlistMeta.Entries))
	sem := make(chan struct{}, s.fetchConcurrency)
	var wg sync.WaitGroup
	for i, entry := range playlistMeta.Entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			metas[i], errs[i] = s.provider.FetchTrack(ctx, entry.URL)
		}()
	}
	wg.Wait()

	tracks := make([]*domain.Track, 0, len(metas))
	for i, meta := range metas {
		if errs[i] != nil {
			perr := providerError(playlistMeta.Entries[i].URL, errs[i])
			slog.Warn("skipping unresolvable playlist entry",
				"guild", input.GuildID,
				"entry", playlistMeta.Entries[i].URL,
				"error", errs[i],
			)
			s.publish(domain.Event{Kind: domain.EventError, GuildID: input.GuildID, Err: perr})
			continue
		}

		track := buildTrack(meta, input, membership)
		if !track.IsValid() {
			perr := providerError(playlistMeta.Entries[i].URL, ErrIncompleteMetadata)
			slog.Warn("skipping playlist entry with incomplete metadata",
				"guild", input.GuildID,
				"entry", playlistMeta.Entries[i].URL,
			)
			s.publish(domain.Event{Kind: domain.EventError, GuildID: input.GuildID, Err: perr})
			continue
		}
		tracks = append(tracks, track)
	}

	if len(tracks) == 0 {
		perr := providerError(locator.Raw, ErrNoResults)
		s.publish(domain.Event{Kind: domain.EventError, GuildID: input.GuildID, Err: perr})
		return nil, nil, perr
	}
	return tracks, membership, nil
}

// Play starts playback of the queue front if the queue is non-empty and
// nothing is already playing. Calling it while playing is a no-op.
func (s *PlayerService) Play(ctx context.Context, guildID snowflake.ID) error {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return ErrNotConnected
	}
	return s.playLocked(ctx, state)
}

// Pause toggles between Playing and Paused. The transition only happens
// if the sink acknowledges the state change.
func (s *PlayerService) Pause(ctx context.Context, guildID snowflake.ID) (*PauseOutput, error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return nil, ErrNotConnected
	}

	switch state.Status() {
	case domain.StatePlaying:
		changed, err := s.sink.Pause(ctx, guildID)
		if err != nil {
			return nil, s.sinkFailureLocked(ctx, state, err)
		}
		if changed {
			state.SetStatus(domain.StatePaused)
			s.publish(domain.Event{
				Kind:    domain.EventPaused,
				GuildID: guildID,
				Track:   state.Queue.Front(),
			})
		}
		return &PauseOutput{Paused: state.Status() == domain.StatePaused}, nil

	case domain.StatePaused:
		changed, err := s.sink.Resume(ctx, guildID)
		if err != nil {
			return nil, s.sinkFailureLocked(ctx, state, err)
		}
		if changed {
			state.SetStatus(domain.StatePlaying)
			s.publish(domain.Event{
				Kind:    domain.EventUnpaused,
				GuildID: guildID,
				Track:   state.Queue.Front(),
			})
		}
		return &PauseOutput{Paused: state.Status() == domain.StatePaused}, nil

	default:
		return nil, ErrNotPlaying
	}
}

// Skip discards the queue front up to the given 1-based position and
// advances playback. A single-track queue delegates to Stop. Skipped
// entries are never archived to history.
func (s *PlayerService) Skip(ctx context.Context, input SkipInput) (*SkipOutput, error) {
	mu := s.guildLock(input.GuildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(input.GuildID)
	if state == nil {
		return nil, ErrNotConnected
	}
	if state.Queue.IsEmpty() {
		return nil, ErrNotPlaying
	}

	if state.Queue.Len() == 1 {
		skipped := state.Queue.Front()
		if err := s.stopLocked(ctx, state); err != nil {
			return nil, err
		}
		return &SkipOutput{SkippedTrack: skipped, Stopped: true}, nil
	}

	position := input.Position
	if position == 0 {
		position = 1
	}
	if position < 1 || position >= state.Queue.Len() {
		return nil, fmt.Errorf("%w: valid range is 1 to %d",
			ErrInvalidSkipPosition, state.Queue.Len()-1)
	}

	skipped := state.Queue.Front()
	state.Queue.DropLeading(position)
	state.SetOverride(domain.AdvanceSkip)

	s.publish(domain.Event{
		Kind:    domain.EventSkipped,
		GuildID: input.GuildID,
		Track:   skipped,
	})

	if state.Status() != domain.StateIdle {
		if err := s.stopSinkLocked(ctx, state); err != nil {
			return nil, s.sinkFailureLocked(ctx, state, err)
		}
	}
	if err := s.advanceLocked(ctx, state); err != nil {
		return nil, err
	}

	return &SkipOutput{SkippedTrack: skipped}, nil
}

// Stop clears the queue, tears down the active stream and returns the
// player to Idle. History survives for Previous.
func (s *PlayerService) Stop(ctx context.Context, guildID snowflake.ID) error {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return ErrNotConnected
	}
	return s.stopLocked(ctx, state)
}

func (s *PlayerService) stopLocked(ctx context.Context, state *domain.PlayerState) error {
	current := state.CurrentTrack()

	if state.Status() != domain.StateIdle {
		if err := s.stopSinkLocked(ctx, state); err != nil {
			return s.sinkFailureLocked(ctx, state, err)
		}
	}

	state.Queue.Clear()
	state.SetOverride(domain.AdvanceArchive)
	state.SetStatus(domain.StateIdle)

	s.publish(domain.Event{
		Kind:    domain.EventStopped,
		GuildID: state.GuildID(),
		Track:   current,
	})
	s.publish(domain.Event{Kind: domain.EventIdle, GuildID: state.GuildID()})

	return nil
}

// Previous pops the most recent history entry, reinserts it at the queue
// front and restarts playback from it. The armed override keeps the
// restored track from being immediately re-archived.
func (s *PlayerService) Previous(ctx context.Context, guildID snowflake.ID) (*PreviousOutput, error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return nil, ErrNotConnected
	}
	if state.History.Len() == 0 {
		return nil, ErrNoHistory
	}

	restored := state.History.Pop()
	current := state.CurrentTrack()
	state.Queue.PushFront(restored)
	state.SetOverride(domain.AdvancePrevious)

	s.publish(domain.Event{
		Kind:     domain.EventPrevious,
		GuildID:  guildID,
		Track:    current,
		NewTrack: restored,
	})

	if state.Status() != domain.StateIdle {
		if err := s.stopSinkLocked(ctx, state); err != nil {
			return nil, s.sinkFailureLocked(ctx, state, err)
		}
	}
	if err := s.advanceLocked(ctx, state); err != nil {
		return nil, err
	}

	return &PreviousOutput{Track: restored}, nil
}

// Shuffle randomizes the queue order. The streaming front element is
// held in place while playback is active so the sink invariant
// (front == streaming track) survives the call.
func (s *PlayerService) Shuffle(ctx context.Context, guildID snowflake.ID) error {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return ErrNotConnected
	}
	if state.Queue.IsEmpty() {
		return ErrQueueEmpty
	}

	s.shuffleLocked(state)
	return nil
}

func (s *PlayerService) shuffleLocked(state *domain.PlayerState) {
	state.Queue.Shuffle(state.Status() != domain.StateIdle)
	s.publish(domain.Event{
		Kind:    domain.EventShuffled,
		GuildID: state.GuildID(),
		Queue:   state.Queue.List(),
	})
}

// CycleLoopMode advances the loop mode: disabled -> song -> queue -> disabled.
// The mode itself never alters queue contents; the idle advance honors it.
func (s *PlayerService) CycleLoopMode(guildID snowflake.ID) (*CycleLoopModeOutput, error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return nil, ErrNotConnected
	}
	return &CycleLoopModeOutput{NewMode: state.CycleLoopMode()}, nil
}

// GetQueue returns a read-only snapshot of the guild's player.
func (s *PlayerService) GetQueue(guildID snowflake.ID) (*QueueSnapshot, error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return nil, ErrNotConnected
	}

	snapshot := &QueueSnapshot{
		State:    state.Status(),
		LoopMode: state.LoopMode(),
		Current:  state.CurrentTrack(),
		History:  state.History.List(),
	}
	if snapshot.Current != nil {
		snapshot.Upcoming = state.Queue.Upcoming()
	} else {
		snapshot.Upcoming = state.Queue.List()
	}
	return snapshot, nil
}

// GetState returns the persisted playback state for the guild.
func (s *PlayerService) GetState(guildID snowflake.ID) (domain.PlaybackState, error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return domain.StateIdle, ErrNotConnected
	}
	return state.Status(), nil
}

// HandleSinkStatus receives asynchronous status transitions from the
// audio sink. The sink's idle notification is the only trigger that
// advances the queue to the next track.
func (s *PlayerService) HandleSinkStatus(guildID snowflake.ID, status ports.SinkStatus, err error) {
	switch status {
	case ports.SinkIdle:
		s.handleSinkIdle(guildID)
	case ports.SinkError:
		s.handleSinkError(guildID, err)
	default:
		slog.Debug("sink status", "guild", guildID, "status", status.String())
	}
}

func (s *PlayerService) handleSinkIdle(guildID snowflake.ID) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return
	}
	// Stale idle after a stop or disconnect.
	if state.Status() == domain.StateIdle && state.Queue.IsEmpty() {
		return
	}

	if err := s.advanceLocked(context.Background(), state); err != nil {
		slog.Error("failed to advance queue after sink idle",
			"guild", guildID,
			"error", err,
		)
	}
}

func (s *PlayerService) handleSinkError(guildID snowflake.ID, sinkErr error) {
	mu := s.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	state := s.repo.Get(guildID)
	if state == nil {
		return
	}
	if err := s.sinkFailureLocked(context.Background(), state, sinkErr); err != nil {
		slog.Error("sink reported streaming failure", "guild", guildID, "error", err)
	}
}

// advanceLocked runs the Playing -> Idle transition. Natural completions
// archive the finished front track per the loop mode; skip and previous
// already arranged the queue and suppress the archive via the override.
// If tracks remain, playback re-enters Idle -> Playing for the new front.
func (s *PlayerService) advanceLocked(ctx context.Context, state *domain.PlayerState) error {
	override := state.TakeOverride()

	if override == domain.AdvanceArchive && state.Status() != domain.StateIdle {
		if finished := state.Queue.Front(); finished != nil {
			switch state.LoopMode() {
			case domain.LoopSong:
				// The finished track stays at the front and replays.
			case domain.LoopQueue:
				state.History.Push(finished)
				state.Queue.PopFront()
				state.Queue.Append(finished)
			default:
				state.History.Push(finished)
				state.Queue.PopFront()
			}
		}
	}

	state.SetStatus(domain.StateIdle)
	s.publish(domain.Event{Kind: domain.EventIdle, GuildID: state.GuildID()})

	return s.playLocked(ctx, state)
}

// playLocked is the Idle -> Playing transition. The shouldPlay guard is
// re-checked on every invocation, including the auto-advance path, and is
// the sole protection against double-starting the sink.
func (s *PlayerService) playLocked(ctx context.Context, state *domain.PlayerState) error {
	if state.Queue.IsEmpty() || state.Status() == domain.StatePlaying {
		return nil
	}

	track := state.Queue.Front()
	if err := s.sink.StartStreaming(ctx, state.GuildID(), track.PlaybackURL); err != nil {
		return s.sinkFailureLocked(ctx, state, err)
	}

	track.MarkStarted(time.Now().UTC())
	state.SetStatus(domain.StatePlaying)

	s.publish(domain.Event{
		Kind:    domain.EventPlaying,
		GuildID: state.GuildID(),
		Track:   track,
	})
	return nil
}

// stopSinkLocked tears down the active stream. The sink's pause flag
// survives stream replacement, so a stream suspended by Pause is resumed
// after the stop; otherwise the next track would load silent.
func (s *PlayerService) stopSinkLocked(ctx context.Context, state *domain.PlayerState) error {
	wasPaused := state.Status() == domain.StatePaused

	if err := s.sink.Stop(ctx, state.GuildID()); err != nil {
		return err
	}
	if wasPaused {
		if _, err := s.sink.Resume(ctx, state.GuildID()); err != nil {
			return err
		}
	}
	return nil
}

// sinkFailureLocked surfaces a sink failure as an Error event, releases
// the connection and forces the persisted state to Idle.
func (s *PlayerService) sinkFailureLocked(
	ctx context.Context,
	state *domain.PlayerState,
	sinkErr error,
) error {
	wrapped := fmt.Errorf("audio sink failure: %w", sinkErr)

	s.publish(domain.Event{
		Kind:    domain.EventError,
		GuildID: state.GuildID(),
		Err:     wrapped,
	})

	if err := s.sink.Release(ctx, state.GuildID()); err != nil {
		slog.Warn("failed to release sink connection",
			"guild", state.GuildID(),
			"error", err,
		)
	}
	state.SetStatus(domain.StateIdle)

	return wrapped
}

// providerError wraps err in a ports.ProviderError unless it already is one.
func providerError(locator string, err error) error {
	if perr, ok := err.(*ports.ProviderError); ok {
		return perr
	}
	return &ports.ProviderError{Locator: locator, Err: err}
}

// buildTrack converts provider metadata into a queue-ready track.
// Playlist-membership fields prefer the per-track metadata and fall back
// to the playlist's own metadata when absent.
func buildTrack(
	meta *ports.TrackMetadata,
	input AddToQueueInput,
	fallback *domain.PlaylistMembership,
) *domain.Track {
	track := &domain.Track{
		ID:            meta.ID,
		Title:         meta.Title,
		Thumbnail:     meta.Thumbnail,
		Description:   meta.Description,
		Duration:      meta.Duration,
		ViewCount:     meta.ViewCount,
		LikeCount:     meta.LikeCount,
		AgeLimit:      meta.AgeLimit,
		PlaybackURL:   meta.PlaybackURL,
		ChannelID:     meta.ChannelID,
		ChannelURL:    meta.ChannelURL,
		UploaderID:    meta.UploaderID,
		UploaderURL:   meta.UploaderURL,
		UploadedAt:    meta.UploadedAt,
		RequesterID:   input.RequesterID,
		RequesterName: input.RequesterName,
		EnqueuedAt:    time.Now().UTC(),
	}

	if meta.PlaylistID != "" {
		track.Playlist = &domain.PlaylistMembership{
			ID:         meta.PlaylistID,
			Title:      meta.PlaylistTitle,
			Uploader:   meta.PlaylistUploader,
			ChannelID:  meta.PlaylistChannel,
			URL:        meta.PlaylistURL,
			TrackCount: meta.PlaylistCount,
		}
		if fallback != nil {
			backfillPlaylist(track.Playlist, fallback)
		}
	} else if fallback != nil {
		membership := *fallback
		track.Playlist = &membership
	}

	return track
}

// backfillPlaylist fills empty membership fields from the playlist metadata.
func backfillPlaylist(membership, fallback *domain.PlaylistMembership) {
	if membership.Title == "" {
		membership.Title = fallback.Title
	}
	if membership.Uploader == "" {
		membership.Uploader = fallback.Uploader
	}
	if membership.ChannelID == "" {
		membership.ChannelID = fallback.ChannelID
	}
	if membership.URL == "" {
		membership.URL = fallback.URL
	}
	if membership.TrackCount == 0 {
		membership.TrackCount = fallback.TrackCount
	}
}
