package usecases

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

func mockMetadata(id string) *ports.TrackMetadata {
	return &ports.TrackMetadata{
		ID:          id,
		Title:       "Track " + id,
		Duration:    180,
		PlaybackURL: "https://example.com/watch?v=" + id,
	}
}

type mockRepository struct {
	states map[snowflake.ID]*domain.PlayerState
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		states: make(map[snowflake.ID]*domain.PlayerState),
	}
}

func (m *mockRepository) Get(guildID snowflake.ID) *domain.PlayerState {
	return m.states[guildID]
}

func (m *mockRepository) Save(state *domain.PlayerState) {
	m.states[state.GuildID()] = state
}

func (m *mockRepository) Delete(guildID snowflake.ID) {
	delete(m.states, guildID)
}

// createConnectedState creates and saves a PlayerState for the guild.
func (m *mockRepository) createConnectedState(
	guildID, voiceChannelID, notificationChannelID snowflake.ID,
) *domain.PlayerState {
	state := domain.NewPlayerState(guildID, voiceChannelID, notificationChannelID, 0)
	m.Save(state)
	return state
}

type mockProvider struct {
	mu        sync.Mutex
	tracks    map[string]*ports.TrackMetadata
	trackErrs map[string]error
	playlists map[string]*ports.PlaylistMetadata
	queries   []string
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		tracks:    make(map[string]*ports.TrackMetadata),
		trackErrs: make(map[string]error),
		playlists: make(map[string]*ports.PlaylistMetadata),
	}
}

func (m *mockProvider) FetchTrack(_ context.Context, query string) (*ports.TrackMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)
	if err := m.trackErrs[query]; err != nil {
		return nil, err
	}
	meta, ok := m.tracks[query]
	if !ok {
		return nil, &ports.ProviderError{Locator: query, Err: ErrNoResults}
	}
	return meta, nil
}

func (m *mockProvider) FetchPlaylist(
	_ context.Context,
	url string,
) (*ports.PlaylistMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	playlist, ok := m.playlists[url]
	if !ok {
		return nil, &ports.ProviderError{Locator: url, Err: ErrNoResults}
	}
	return playlist, nil
}

type mockSink struct {
	mu         sync.Mutex
	streamed   []string // source URLs handed to StartStreaming
	stops      int
	releases   int
	resumes    int
	paused     bool // persists across Stop/StartStreaming until Resume
	pauseOK    bool // whether Pause reports a state change
	resumeOK   bool // whether Resume reports a state change
	openErr    error
	streamErr  error
	pauseErr   error
	resumeErr  error
	stopErr    error
	releaseErr error
	handler    ports.SinkStatusHandler
}

func newMockSink() *mockSink {
	return &mockSink{pauseOK: true, resumeOK: true}
}

func (m *mockSink) Open(_ context.Context, _, _ snowflake.ID) error {
	return m.openErr
}

func (m *mockSink) StartStreaming(_ context.Context, _ snowflake.ID, sourceURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamErr != nil {
		return m.streamErr
	}
	m.streamed = append(m.streamed, sourceURL)
	return nil
}

func (m *mockSink) Pause(_ context.Context, _ snowflake.ID) (bool, error) {
	if m.pauseErr != nil || !m.pauseOK {
		return false, m.pauseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	return true, nil
}

func (m *mockSink) Resume(_ context.Context, _ snowflake.ID) (bool, error) {
	if m.resumeErr != nil || !m.resumeOK {
		return false, m.resumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	m.paused = false
	return true, nil
}

func (m *mockSink) Stop(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopErr != nil {
		return m.stopErr
	}
	m.stops++
	return nil
}

func (m *mockSink) Release(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.releases++
	return nil
}

func (m *mockSink) OnStatus(handler ports.SinkStatusHandler) {
	m.handler = handler
}

func (m *mockSink) streamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streamed)
}

func (m *mockSink) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *mockSink) resumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}

// recordingPublisher collects published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingPublisher) Publish(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.EventKind, len(r.events))
	for i, event := range r.events {
		kinds[i] = event.Kind
	}
	return kinds
}

func (r *recordingPublisher) countKind(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Kind == kind {
			count++
		}
	}
	return count
}

func (r *recordingPublisher) lastOfKind(kind domain.EventKind) *domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			event := r.events[i]
			return &event
		}
	}
	return nil
}

// newTestPlayer wires a PlayerService with fresh mocks.
func newTestPlayer() (*PlayerService, *mockRepository, *mockProvider, *mockSink, *recordingPublisher) {
	repo := newMockRepository()
	provider := newMockProvider()
	sink := newMockSink()
	publisher := &recordingPublisher{}
	service := NewPlayerService(repo, provider, sink, publisher, 2)
	return service, repo, provider, sink, publisher
}

type mockVoiceState struct {
	channels map[snowflake.ID]*snowflake.ID
	err      error
}

func (m *mockVoiceState) GetUserVoiceChannel(_, userID snowflake.ID) (*snowflake.ID, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.channels[userID], nil
}
