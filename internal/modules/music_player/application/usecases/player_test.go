package usecases

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

const (
	testGuild        = snowflake.ID(100)
	testVoiceChannel = snowflake.ID(200)
	testTextChannel  = snowflake.ID(300)
)

func trackURL(id string) string {
	return "https://example.com/watch?v=" + id
}

func registerTracks(provider *mockProvider, ids ...string) {
	for _, id := range ids {
		provider.tracks[trackURL(id)] = mockMetadata(id)
	}
}

func enqueueTracks(
	t *testing.T,
	service *PlayerService,
	provider *mockProvider,
	ids ...string,
) {
	t.Helper()

	registerTracks(provider, ids...)
	for _, id := range ids {
		_, err := service.AddToQueue(context.Background(), AddToQueueInput{
			GuildID: testGuild,
			Locator: trackURL(id),
		})
		if err != nil {
			t.Fatalf("AddToQueue(%q) returned error: %v", id, err)
		}
	}
}

func trackIDs(tracks []*domain.Track) []string {
	ids := make([]string, len(tracks))
	for i, track := range tracks {
		ids[i] = track.ID
	}
	return ids
}

func mustSnapshot(t *testing.T, service *PlayerService) *QueueSnapshot {
	t.Helper()

	snapshot, err := service.GetQueue(testGuild)
	if err != nil {
		t.Fatalf("GetQueue returned error: %v", err)
	}
	return snapshot
}

func TestAddToQueueRequiresConnection(t *testing.T) {
	service, _, provider, _, _ := newTestPlayer()
	registerTracks(provider, "a1")

	_, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: trackURL("a1"),
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestAddToQueueRejectsEmptyLocator(t *testing.T) {
	service, repo, _, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	for _, locator := range []string{"", "   ", "\t\n"} {
		_, err := service.AddToQueue(context.Background(), AddToQueueInput{
			GuildID: testGuild,
			Locator: locator,
		})
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("AddToQueue(%q): expected ErrEmptyQuery, got %v", locator, err)
		}
	}
}

func TestAddToQueueStartsPlayback(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	enqueueTracks(t, service, provider, "a1")

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StatePlaying {
		t.Errorf("expected StatePlaying, got %v", snapshot.State)
	}
	if snapshot.Current == nil || snapshot.Current.ID != "a1" {
		t.Errorf("expected current track a1, got %+v", snapshot.Current)
	}
	if !snapshot.Current.HasStarted() {
		t.Error("expected current track to be marked started")
	}
	if sink.streamCount() != 1 {
		t.Errorf("expected 1 stream start, got %d", sink.streamCount())
	}

	want := []domain.EventKind{domain.EventSongAdded, domain.EventPlaying}
	if got := publisher.kinds(); !slices.Equal(got, want) {
		t.Errorf("expected events %v, got %v", want, got)
	}
}

func TestAddToQueueSearchTermUsesSearchQuery(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	provider.tracks["ytsearch1:some song"] = mockMetadata("s1")

	_, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: "some song",
	})
	if err != nil {
		t.Fatalf("AddToQueue returned error: %v", err)
	}
	if len(provider.queries) != 1 || provider.queries[0] != "ytsearch1:some song" {
		t.Errorf("expected search query with ytsearch1 prefix, got %v", provider.queries)
	}
}

func TestAddToQueueWhilePlayingDoesNotRestart(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	enqueueTracks(t, service, provider, "a1", "b2")

	if sink.streamCount() != 1 {
		t.Errorf("expected 1 stream start, got %d", sink.streamCount())
	}
	if got := publisher.countKind(domain.EventPlaying); got != 1 {
		t.Errorf("expected 1 Playing event, got %d", got)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "a1" {
		t.Errorf("expected current track a1, got %s", snapshot.Current.ID)
	}
	if got := trackIDs(snapshot.Upcoming); !slices.Equal(got, []string{"b2"}) {
		t.Errorf("expected upcoming [b2], got %v", got)
	}
}

func TestAddToQueueProviderFailure(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	provider.trackErrs[trackURL("bad")] = errors.New("extraction failed")

	_, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: trackURL("bad"),
	})

	var perr *ports.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if got := publisher.countKind(domain.EventError); got != 1 {
		t.Errorf("expected 1 Error event, got %d", got)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StateIdle || len(snapshot.Upcoming) != 0 {
		t.Errorf("expected untouched idle player, got state=%v upcoming=%v",
			snapshot.State, trackIDs(snapshot.Upcoming))
	}
}

func TestAddToQueueIncompleteMetadata(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	meta := mockMetadata("a1")
	meta.PlaybackURL = ""
	provider.tracks[trackURL("a1")] = meta

	_, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: trackURL("a1"),
	})
	if !errors.Is(err, ErrIncompleteMetadata) {
		t.Fatalf("expected ErrIncompleteMetadata, got %v", err)
	}
	var perr *ports.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if got := publisher.countKind(domain.EventError); got != 1 {
		t.Errorf("expected 1 Error event, got %d", got)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StateIdle || len(snapshot.Upcoming) != 0 {
		t.Errorf("expected untouched idle player, got state=%v upcoming=%v",
			snapshot.State, trackIDs(snapshot.Upcoming))
	}
}

func newTestPlaylist(ids ...string) *ports.PlaylistMetadata {
	entries := make([]ports.PlaylistEntry, len(ids))
	for i, id := range ids {
		entries[i] = ports.PlaylistEntry{ID: id, URL: trackURL(id), Title: "Track " + id}
	}
	return &ports.PlaylistMetadata{
		ID:         "PL123",
		Title:      "Mix",
		Uploader:   "uploader",
		WebpageURL: "https://example.com/playlist?list=PL123",
		TrackCount: len(ids),
		Entries:    entries,
	}
}

func TestAddToQueuePlaylistPreservesOrder(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	playlist := newTestPlaylist("p1", "p2", "p3", "p4", "p5")
	provider.playlists[playlist.WebpageURL] = playlist
	registerTracks(provider, "p1", "p2", "p3", "p4", "p5")

	out, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: playlist.WebpageURL,
	})
	if err != nil {
		t.Fatalf("AddToQueue returned error: %v", err)
	}

	want := []string{"p1", "p2", "p3", "p4", "p5"}
	if got := trackIDs(out.Tracks); !slices.Equal(got, want) {
		t.Errorf("expected tracks %v, got %v", want, got)
	}
	if out.Playlist == nil || out.Playlist.ID != "PL123" {
		t.Errorf("expected playlist membership PL123, got %+v", out.Playlist)
	}
	for _, track := range out.Tracks {
		if track.Playlist == nil || track.Playlist.Title != "Mix" {
			t.Errorf("track %s missing backfilled playlist membership", track.ID)
		}
	}

	added := publisher.lastOfKind(domain.EventPlaylistAdded)
	if added == nil {
		t.Fatal("expected PlaylistAdded event")
	}
	if len(added.Tracks) != 5 {
		t.Errorf("expected 5 tracks in PlaylistAdded event, got %d", len(added.Tracks))
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "p1" {
		t.Errorf("expected playback to start with p1, got %s", snapshot.Current.ID)
	}
}

func TestAddToQueuePlaylistSkipsFailedEntries(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	playlist := newTestPlaylist("p1", "p2", "p3")
	provider.playlists[playlist.WebpageURL] = playlist
	registerTracks(provider, "p1", "p3")
	provider.trackErrs[trackURL("p2")] = errors.New("unavailable")

	out, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: playlist.WebpageURL,
	})
	if err != nil {
		t.Fatalf("AddToQueue returned error: %v", err)
	}

	if got := trackIDs(out.Tracks); !slices.Equal(got, []string{"p1", "p3"}) {
		t.Errorf("expected tracks [p1 p3], got %v", got)
	}
	if got := publisher.countKind(domain.EventError); got != 1 {
		t.Errorf("expected 1 Error event for the failed entry, got %d", got)
	}
}

func TestAddToQueuePlaylistSkipsIncompleteEntries(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	playlist := newTestPlaylist("p1", "p2")
	provider.playlists[playlist.WebpageURL] = playlist
	registerTracks(provider, "p1")

	meta := mockMetadata("p2")
	meta.PlaybackURL = ""
	provider.tracks[trackURL("p2")] = meta

	out, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: playlist.WebpageURL,
	})
	if err != nil {
		t.Fatalf("AddToQueue returned error: %v", err)
	}

	if got := trackIDs(out.Tracks); !slices.Equal(got, []string{"p1"}) {
		t.Errorf("expected tracks [p1], got %v", got)
	}
	if got := publisher.countKind(domain.EventError); got != 1 {
		t.Errorf("expected 1 Error event for the incomplete entry, got %d", got)
	}
}

func TestAddToQueuePlaylistAllEntriesFail(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	playlist := newTestPlaylist("p1", "p2")
	provider.playlists[playlist.WebpageURL] = playlist
	provider.trackErrs[trackURL("p1")] = errors.New("unavailable")
	provider.trackErrs[trackURL("p2")] = errors.New("unavailable")

	_, err := service.AddToQueue(context.Background(), AddToQueueInput{
		GuildID: testGuild,
		Locator: playlist.WebpageURL,
	})
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}

	snapshot := mustSnapshot(t, service)
	if len(snapshot.Upcoming) != 0 || snapshot.Current != nil {
		t.Error("expected nothing inserted when every playlist entry fails")
	}
}

func TestPauseToggle(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	out, err := service.Pause(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if !out.Paused {
		t.Error("expected Paused=true after pausing")
	}
	if got, _ := service.GetState(testGuild); got != domain.StatePaused {
		t.Errorf("expected StatePaused, got %v", got)
	}

	out, err = service.Pause(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if out.Paused {
		t.Error("expected Paused=false after resuming")
	}
	if got, _ := service.GetState(testGuild); got != domain.StatePlaying {
		t.Errorf("expected StatePlaying, got %v", got)
	}

	if publisher.countKind(domain.EventPaused) != 1 ||
		publisher.countKind(domain.EventUnpaused) != 1 {
		t.Errorf("expected one Paused and one Unpaused event, got %v", publisher.kinds())
	}
}

func TestPauseWhenIdle(t *testing.T) {
	service, repo, _, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	_, err := service.Pause(context.Background(), testGuild)
	if !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
}

func TestPauseUnacknowledgedBySink(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")
	sink.pauseOK = false

	out, err := service.Pause(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if out.Paused {
		t.Error("expected Paused=false when the sink does not acknowledge")
	}
	if got, _ := service.GetState(testGuild); got != domain.StatePlaying {
		t.Errorf("expected state to stay StatePlaying, got %v", got)
	}
	if publisher.countKind(domain.EventPaused) != 0 {
		t.Error("expected no Paused event when the sink does not acknowledge")
	}
}

func TestResumeUnacknowledgedBySink(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	if _, err := service.Pause(context.Background(), testGuild); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	sink.resumeOK = false

	out, err := service.Pause(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if !out.Paused {
		t.Error("expected Paused=true when the sink does not acknowledge the resume")
	}
	if got, _ := service.GetState(testGuild); got != domain.StatePaused {
		t.Errorf("expected state to stay StatePaused, got %v", got)
	}
	if publisher.countKind(domain.EventUnpaused) != 0 {
		t.Error("expected no Unpaused event when the sink does not acknowledge")
	}
}

func TestSkipWhilePausedResumesSink(t *testing.T) {
	service, repo, provider, sink, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")

	if _, err := service.Pause(context.Background(), testGuild); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}

	out, err := service.Skip(context.Background(), SkipInput{GuildID: testGuild})
	if err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	if out.SkippedTrack.ID != "a1" {
		t.Errorf("expected to skip a1, got %s", out.SkippedTrack.ID)
	}

	if got, _ := service.GetState(testGuild); got != domain.StatePlaying {
		t.Fatalf("expected StatePlaying after skip, got %v", got)
	}
	if sink.isPaused() {
		t.Error("expected the sink pause flag to be cleared before the next stream")
	}
	if sink.resumeCount() != 1 {
		t.Errorf("expected 1 resume, got %d", sink.resumeCount())
	}
}

func TestPreviousWhilePausedResumesSink(t *testing.T) {
	service, repo, provider, sink, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")

	// Finish a1 naturally so it lands in history, then suspend b2.
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)
	if _, err := service.Pause(context.Background(), testGuild); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}

	out, err := service.Previous(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Previous returned error: %v", err)
	}
	if out.Track.ID != "a1" {
		t.Errorf("expected restored track a1, got %s", out.Track.ID)
	}

	if got, _ := service.GetState(testGuild); got != domain.StatePlaying {
		t.Fatalf("expected StatePlaying after previous, got %v", got)
	}
	if sink.isPaused() {
		t.Error("expected the sink pause flag to be cleared before the next stream")
	}
}

func TestStopWhilePausedClearsSinkPause(t *testing.T) {
	service, repo, provider, sink, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	if _, err := service.Pause(context.Background(), testGuild); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	if err := service.Stop(context.Background(), testGuild); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if sink.isPaused() {
		t.Error("expected Stop to clear the sink pause flag")
	}

	// The next playback starts audible.
	enqueueTracks(t, service, provider, "b2")
	if got, _ := service.GetState(testGuild); got != domain.StatePlaying {
		t.Fatalf("expected StatePlaying, got %v", got)
	}
	if sink.isPaused() {
		t.Error("expected the new stream to start unpaused")
	}
}

func TestSinkIdleAdvancesQueue(t *testing.T) {
	service, repo, provider, sink, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")

	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StatePlaying {
		t.Fatalf("expected StatePlaying after advance, got %v", snapshot.State)
	}
	if snapshot.Current.ID != "b2" {
		t.Errorf("expected current track b2, got %s", snapshot.Current.ID)
	}
	if got := trackIDs(snapshot.History); !slices.Equal(got, []string{"a1"}) {
		t.Errorf("expected history [a1], got %v", got)
	}
	if sink.streamCount() != 2 {
		t.Errorf("expected 2 stream starts, got %d", sink.streamCount())
	}

	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)

	snapshot = mustSnapshot(t, service)
	if snapshot.State != domain.StateIdle {
		t.Errorf("expected StateIdle after queue drained, got %v", snapshot.State)
	}
	if snapshot.Current != nil {
		t.Errorf("expected no current track, got %+v", snapshot.Current)
	}
	if got := trackIDs(snapshot.History); !slices.Equal(got, []string{"a1", "b2"}) {
		t.Errorf("expected history [a1 b2], got %v", got)
	}
}

func TestSinkIdleAfterStopIsIgnored(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	if err := service.Stop(context.Background(), testGuild); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	playing := publisher.countKind(domain.EventPlaying)

	// The sink may still deliver the idle for the stopped stream.
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)

	if got, _ := service.GetState(testGuild); got != domain.StateIdle {
		t.Errorf("expected StateIdle, got %v", got)
	}
	if got := publisher.countKind(domain.EventPlaying); got != playing {
		t.Errorf("stale idle restarted playback: %d Playing events", got)
	}
	if sink.streamCount() != 1 {
		t.Errorf("expected no new stream starts, got %d", sink.streamCount())
	}
}

func TestHistoryEvictsOldestAtCapacity(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	state := domain.NewPlayerState(testGuild, testVoiceChannel, testTextChannel, 2)
	repo.Save(state)

	enqueueTracks(t, service, provider, "a1", "b2", "c3")
	for range 3 {
		service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)
	}

	snapshot := mustSnapshot(t, service)
	if got := trackIDs(snapshot.History); !slices.Equal(got, []string{"b2", "c3"}) {
		t.Errorf("expected history [b2 c3] after eviction, got %v", got)
	}
}

func TestSkipAdvancesWithoutArchiving(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")

	out, err := service.Skip(context.Background(), SkipInput{GuildID: testGuild})
	if err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	if out.SkippedTrack.ID != "a1" || out.Stopped {
		t.Errorf("expected skipped a1 without stop, got %+v", out)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "b2" {
		t.Errorf("expected current track b2, got %s", snapshot.Current.ID)
	}
	if len(snapshot.History) != 0 {
		t.Errorf("skip must bypass history, got %v", trackIDs(snapshot.History))
	}
	if publisher.countKind(domain.EventSkipped) != 1 {
		t.Error("expected a Skipped event")
	}
	if sink.stops != 1 {
		t.Errorf("expected 1 sink stop, got %d", sink.stops)
	}
}

func TestSkipToPosition(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2", "c3", "d4")

	out, err := service.Skip(context.Background(), SkipInput{GuildID: testGuild, Position: 2})
	if err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	if out.SkippedTrack.ID != "a1" {
		t.Errorf("expected skipped track a1, got %s", out.SkippedTrack.ID)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "c3" {
		t.Errorf("expected current track c3, got %s", snapshot.Current.ID)
	}
	if got := trackIDs(snapshot.Upcoming); !slices.Equal(got, []string{"d4"}) {
		t.Errorf("expected upcoming [d4], got %v", got)
	}
	if len(snapshot.History) != 0 {
		t.Errorf("skipped tracks must not reach history, got %v", trackIDs(snapshot.History))
	}
}

func TestSkipInvalidPosition(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2", "c3")

	for _, position := range []int{-1, 3, 10} {
		_, err := service.Skip(context.Background(), SkipInput{
			GuildID:  testGuild,
			Position: position,
		})
		if !errors.Is(err, ErrInvalidSkipPosition) {
			t.Errorf("Skip(position=%d): expected ErrInvalidSkipPosition, got %v", position, err)
		}
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "a1" || len(snapshot.Upcoming) != 2 {
		t.Error("failed skip must leave the queue unchanged")
	}
	if snapshot.State != domain.StatePlaying {
		t.Errorf("failed skip must leave playback running, got %v", snapshot.State)
	}
}

func TestSkipSingleTrackDelegatesToStop(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	out, err := service.Skip(context.Background(), SkipInput{GuildID: testGuild})
	if err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	if !out.Stopped || out.SkippedTrack.ID != "a1" {
		t.Errorf("expected delegated stop of a1, got %+v", out)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StateIdle || snapshot.Current != nil {
		t.Error("expected idle player after single-track skip")
	}
	if publisher.countKind(domain.EventStopped) != 1 {
		t.Error("expected a Stopped event")
	}
}

func TestSkipEmptyQueue(t *testing.T) {
	service, repo, _, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	_, err := service.Skip(context.Background(), SkipInput{GuildID: testGuild})
	if !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
}

func TestStopClearsQueueKeepsHistory(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)

	if err := service.Stop(context.Background(), testGuild); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StateIdle || snapshot.Current != nil {
		t.Error("expected idle player after stop")
	}
	if len(snapshot.Upcoming) != 0 {
		t.Errorf("expected cleared queue, got %v", trackIDs(snapshot.Upcoming))
	}
	if got := trackIDs(snapshot.History); !slices.Equal(got, []string{"a1"}) {
		t.Errorf("stop must preserve history, got %v", got)
	}
	if publisher.countKind(domain.EventStopped) != 1 {
		t.Error("expected a Stopped event")
	}
	if sink.stops != 1 {
		t.Errorf("expected 1 sink stop, got %d", sink.stops)
	}
}

func TestPreviousEmptyHistory(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	_, err := service.Previous(context.Background(), testGuild)
	if !errors.Is(err, ErrNoHistory) {
		t.Errorf("expected ErrNoHistory, got %v", err)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StatePlaying || snapshot.Current.ID != "a1" {
		t.Error("failed previous must leave the player unchanged")
	}
}

func TestPreviousRestoresTrack(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil) // a1 finishes, b2 plays

	out, err := service.Previous(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Previous returned error: %v", err)
	}
	if out.Track.ID != "a1" {
		t.Errorf("expected restored track a1, got %s", out.Track.ID)
	}

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "a1" {
		t.Errorf("expected current track a1, got %s", snapshot.Current.ID)
	}
	if got := trackIDs(snapshot.Upcoming); !slices.Equal(got, []string{"b2"}) {
		t.Errorf("expected upcoming [b2], got %v", got)
	}
	if len(snapshot.History) != 0 {
		t.Errorf("restored track must not be re-archived, got %v", trackIDs(snapshot.History))
	}

	event := publisher.lastOfKind(domain.EventPrevious)
	if event == nil {
		t.Fatal("expected a Previous event")
	}
	if event.Track.ID != "b2" || event.NewTrack.ID != "a1" {
		t.Errorf("expected Previous event b2 -> a1, got %s -> %s",
			event.Track.ID, event.NewTrack.ID)
	}
}

func TestPreviousWhileIdleRestartsPlayback(t *testing.T) {
	service, repo, provider, sink, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil) // queue drains

	out, err := service.Previous(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Previous returned error: %v", err)
	}
	if out.Track.ID != "a1" {
		t.Errorf("expected restored track a1, got %s", out.Track.ID)
	}
	if got, _ := service.GetState(testGuild); got != domain.StatePlaying {
		t.Errorf("expected StatePlaying, got %v", got)
	}
	if sink.stops != 0 {
		t.Errorf("idle previous must not stop the sink, got %d stops", sink.stops)
	}
}

func TestShuffleHoldsPlayingFront(t *testing.T) {
	service, repo, provider, _, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	ids := []string{"a1", "b2", "c3", "d4", "e5", "f6"}
	enqueueTracks(t, service, provider, ids...)

	for range 10 {
		if err := service.Shuffle(context.Background(), testGuild); err != nil {
			t.Fatalf("Shuffle returned error: %v", err)
		}

		snapshot := mustSnapshot(t, service)
		if snapshot.Current.ID != "a1" {
			t.Fatalf("shuffle moved the playing track: front is %s", snapshot.Current.ID)
		}

		got := append([]string{snapshot.Current.ID}, trackIDs(snapshot.Upcoming)...)
		slices.Sort(got)
		want := slices.Clone(ids)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			t.Fatalf("shuffle changed queue contents: %v", got)
		}
	}

	if publisher.countKind(domain.EventShuffled) != 10 {
		t.Errorf("expected 10 Shuffled events, got %d",
			publisher.countKind(domain.EventShuffled))
	}
}

func TestShuffleEmptyQueue(t *testing.T) {
	service, repo, _, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	err := service.Shuffle(context.Background(), testGuild)
	if !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestLoopSongReplaysFront(t *testing.T) {
	service, repo, provider, sink, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")

	if _, err := service.CycleLoopMode(testGuild); err != nil { // disabled -> song
		t.Fatalf("CycleLoopMode returned error: %v", err)
	}
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "a1" {
		t.Errorf("loop=song must replay the front, got %s", snapshot.Current.ID)
	}
	if len(snapshot.History) != 0 {
		t.Errorf("loop=song must not archive, got %v", trackIDs(snapshot.History))
	}
	if sink.streamCount() != 2 {
		t.Errorf("expected a second stream start, got %d", sink.streamCount())
	}
}

func TestLoopQueueRotatesToBack(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2")

	service.CycleLoopMode(testGuild) // disabled -> song
	service.CycleLoopMode(testGuild) // song -> queue
	service.HandleSinkStatus(testGuild, ports.SinkIdle, nil)

	snapshot := mustSnapshot(t, service)
	if snapshot.Current.ID != "b2" {
		t.Errorf("expected current track b2, got %s", snapshot.Current.ID)
	}
	if got := trackIDs(snapshot.Upcoming); !slices.Equal(got, []string{"a1"}) {
		t.Errorf("loop=queue must rotate the finished track to the back, got %v", got)
	}
	if got := trackIDs(snapshot.History); !slices.Equal(got, []string{"a1"}) {
		t.Errorf("loop=queue still archives to history, got %v", got)
	}
}

func TestCycleLoopMode(t *testing.T) {
	service, repo, _, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)

	want := []domain.LoopMode{domain.LoopSong, domain.LoopQueue, domain.LoopDisabled}
	for _, mode := range want {
		out, err := service.CycleLoopMode(testGuild)
		if err != nil {
			t.Fatalf("CycleLoopMode returned error: %v", err)
		}
		if out.NewMode != mode {
			t.Errorf("expected mode %v, got %v", mode, out.NewMode)
		}
	}
}

func TestSinkErrorForcesIdle(t *testing.T) {
	service, repo, provider, sink, publisher := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1")

	service.HandleSinkStatus(testGuild, ports.SinkError, errors.New("stream died"))

	if got, _ := service.GetState(testGuild); got != domain.StateIdle {
		t.Errorf("expected StateIdle after sink failure, got %v", got)
	}
	if publisher.countKind(domain.EventError) != 1 {
		t.Error("expected an Error event for the sink failure")
	}
	if sink.releases != 1 {
		t.Errorf("expected the connection to be released, got %d releases", sink.releases)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	service, _, _, _, _ := newTestPlayer()
	ctx := context.Background()

	if err := service.Play(ctx, testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Play: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.Pause(ctx, testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Pause: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.Skip(ctx, SkipInput{GuildID: testGuild}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Skip: expected ErrNotConnected, got %v", err)
	}
	if err := service.Stop(ctx, testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Stop: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.Previous(ctx, testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Previous: expected ErrNotConnected, got %v", err)
	}
	if err := service.Shuffle(ctx, testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Shuffle: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.CycleLoopMode(testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("CycleLoopMode: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.GetQueue(testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("GetQueue: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.GetState(testGuild); !errors.Is(err, ErrNotConnected) {
		t.Errorf("GetState: expected ErrNotConnected, got %v", err)
	}
}

func TestGetQueueSnapshot(t *testing.T) {
	service, repo, provider, _, _ := newTestPlayer()
	repo.createConnectedState(testGuild, testVoiceChannel, testTextChannel)
	enqueueTracks(t, service, provider, "a1", "b2", "c3")

	snapshot := mustSnapshot(t, service)
	if snapshot.State != domain.StatePlaying {
		t.Errorf("expected StatePlaying, got %v", snapshot.State)
	}
	if snapshot.LoopMode != domain.LoopDisabled {
		t.Errorf("expected LoopDisabled, got %v", snapshot.LoopMode)
	}
	if snapshot.Current.ID != "a1" {
		t.Errorf("expected current a1, got %s", snapshot.Current.ID)
	}
	if got := trackIDs(snapshot.Upcoming); !slices.Equal(got, []string{"b2", "c3"}) {
		t.Errorf("expected upcoming [b2 c3], got %v", got)
	}
}
