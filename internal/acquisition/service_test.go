package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"serialarr/internal/database"
	"serialarr/internal/fetch"
	"serialarr/internal/library"
	"serialarr/internal/notify"
	"serialarr/internal/source"
	"serialarr/internal/source/mocks"
	"serialarr/pkg/models"
)

type recordedEvent struct {
	work    *models.Work
	payload notify.Payload
}

type recordingNotifier struct {
	events []recordedEvent
}

func (r *recordingNotifier) Dispatch(_ context.Context, work *models.Work, payload notify.Payload) error {
	r.events = append(r.events, recordedEvent{work: work, payload: payload})
	return nil
}

type fixture struct {
	svc      *Service
	db       *database.DB
	src      *mocks.MockSource
	notifier *recordingNotifier
	libRoot  string
	legacy   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := mocks.NewMockSource(ctrl)
	src.EXPECT().Key().Return("kemono").AnyTimes()
	src.EXPECT().DefaultEnabled().Return(true).AnyTimes()
	src.EXPECT().Identify(gomock.Any()).Return(true).AnyTimes()

	registry := source.NewRegistry(nil, fetch.New(fetch.Options{}))
	registry.Register(src)

	libRoot := t.TempDir()
	legacy := t.TempDir()
	resolver := library.NewPathResolver(libRoot, library.Formats{
		WorkFolder:   "{Title} ({Id})",
		EpisodeFile:  "{Index} - {Title}",
		VolumeFolder: "Volume {Volume}",
		CompiledName: "{Title} - {Suffix}",
	})

	notifier := &recordingNotifier{}
	svc := NewService(db, registry, notifier, resolver, legacy)

	return &fixture{svc: svc, db: db, src: src, notifier: notifier, libRoot: libRoot, legacy: legacy}
}

func listing(n int) []source.ListingItem {
	items := make([]source.ListingItem, n)
	for i := range items {
		items[i] = source.ListingItem{
			Title: fmt.Sprintf("Chapter %d", i+1),
			URL:   fmt.Sprintf("https://kemono.su/patreon/user/1/post/%d", i+1),
		}
	}
	return items
}

func TestService_AddWork(t *testing.T) {
	f := newFixture(t)
	url := "https://kemono.su/patreon/user/1"

	f.src.EXPECT().Metadata(gomock.Any(), url).Return(&source.Metadata{
		Title:  "Pale",
		Author: "Wildbow",
		Tags:   []string{"urban fantasy"},
	}, nil)
	f.src.EXPECT().Episodes(gomock.Any(), url, nil).Return(listing(2), nil)

	work, err := f.svc.AddWork(context.Background(), url, 0, "")
	require.NoError(t, err)
	require.Equal(t, "Pale", work.Title)
	require.Equal(t, "kemono", work.ProviderKey)
	require.True(t, work.Monitored)

	episodes, err := f.db.ListEpisodesByWork(work.ID)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	require.Equal(t, models.StatusPending, episodes[0].Status)
	require.Equal(t, 1, episodes[0].Sequence)
	require.Equal(t, 2, episodes[1].Sequence)

	got, err := f.db.GetWork(work.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	require.NotNil(t, got.LastUpdated)
}

func TestService_AddWorkTwiceRefreshes(t *testing.T) {
	f := newFixture(t)
	url := "https://kemono.su/patreon/user/1"

	f.src.EXPECT().Metadata(gomock.Any(), url).Return(&source.Metadata{Title: "Pale"}, nil).Times(2)
	f.src.EXPECT().Episodes(gomock.Any(), url, nil).Return(listing(3), nil)

	work, err := f.svc.AddWork(context.Background(), url, 0, "")
	require.NoError(t, err)

	// Re-adding a tracked URL refreshes it instead of failing: the grown
	// listing yields exactly one new pending episode.
	f.src.EXPECT().Episodes(gomock.Any(), url, gomock.Any()).Return(listing(4), nil)

	again, err := f.svc.AddWork(context.Background(), url, 0, "")
	require.NoError(t, err)
	require.Equal(t, work.ID, again.ID)

	episodes, err := f.db.ListEpisodesByWork(work.ID)
	require.NoError(t, err)
	require.Len(t, episodes, 4)
	require.Equal(t, models.StatusPending, episodes[3].Status)

	got, err := f.db.GetWork(work.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	require.NotNil(t, got.LastUpdated)
}

func TestService_AddWorkUnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddWork(context.Background(), "https://example.com/x", 0, "royalroad")
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestService_CheckWorkUpdatesEnqueuesNew(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(&source.Metadata{}, nil)
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, gomock.Any()).Return(listing(3), nil)

	added, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)
	require.Equal(t, 3, added)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, notify.EventNewEpisodes, f.notifier.events[0].payload.Event)
	require.Equal(t, 3, f.notifier.events[0].payload.EpisodeCount)

	got, err := f.db.GetWork(work.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	require.NotNil(t, got.LastUpdated)
}

func TestService_CheckWorkUpdatesRefreshesMetadata(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)
	work.Description = "stale blurb"
	work.PublicationStatus = "ongoing"
	require.NoError(t, f.db.UpdateWork(work))

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(&source.Metadata{
		Description:       "fresh blurb",
		PublicationStatus: "completed",
	}, nil)
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, gomock.Any()).Return(nil, nil)

	_, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)

	got, err := f.db.GetWork(work.ID)
	require.NoError(t, err)
	// Non-empty provider values win; empty ones never clear stored fields.
	require.Equal(t, "fresh blurb", got.Description)
	require.Equal(t, "completed", got.PublicationStatus)
	require.Equal(t, "Pale", got.Title)
}

func TestService_CheckWorkUpdatesSurvivesMetadataFailure(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(nil, errors.New("profile fetch blew up"))
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, gomock.Any()).Return(listing(1), nil)

	added, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)
	require.Equal(t, 1, added)
}

func TestService_CheckWorkUpdatesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(&source.Metadata{}, nil).Times(2)
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, gomock.Any()).Return(listing(2), nil).Times(2)

	added, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	added, err = f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)
	require.Zero(t, added)

	// Only the first sweep raised an event.
	require.Len(t, f.notifier.events, 1)

	episodes, err := f.db.ListEpisodesByWork(work.ID)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
}

func TestService_CheckWorkUpdatesPassesHint(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(&source.Metadata{}, nil).Times(2)
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, nil).Return(listing(1), nil)
	_, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)

	f.src.EXPECT().
		Episodes(gomock.Any(), work.SourceURL, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, last *source.ListingHint) ([]source.ListingItem, error) {
			require.NotNil(t, last)
			require.Equal(t, "https://kemono.su/patreon/user/1/post/1", last.URL)
			require.Equal(t, 1, last.Sequence)
			return nil, nil
		})
	_, err = f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)
}

func TestService_CheckWorkUpdatesReconcilesListingFields(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(&source.Metadata{}, nil).Times(2)
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, gomock.Any()).Return(listing(1), nil)
	_, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)

	episodes, err := f.db.ListEpisodesByWork(work.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.MarkEpisodeDownloaded(episodes[0].ID, "/somewhere/0001.html"))

	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	updated := listing(1)
	updated[0].Index = 5
	updated[0].VolumeNumber = 2
	updated[0].VolumeTitle = "Arc Two"
	updated[0].PublishedAt = &published
	f.src.EXPECT().Episodes(gomock.Any(), work.SourceURL, gomock.Any()).Return(updated, nil)

	added, err := f.svc.CheckWorkUpdates(context.Background(), work.ID)
	require.NoError(t, err)
	require.Zero(t, added)

	got, err := f.db.GetEpisode(episodes[0].ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Sequence)
	require.Equal(t, 2, got.VolumeNumber)
	require.NotNil(t, got.PublishedAt)
	// Download state is never touched by the diff.
	require.Equal(t, models.StatusDownloaded, got.Status)
	require.Equal(t, "/somewhere/0001.html", got.LocalPath)
}

func TestService_CheckAllMonitoredIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	broken := storedWork(t, f.db)
	healthy := storedWorkURL(t, f.db, "https://kemono.su/patreon/user/2")

	f.src.EXPECT().Metadata(gomock.Any(), gomock.Any()).Return(&source.Metadata{}, nil).AnyTimes()
	f.src.EXPECT().Episodes(gomock.Any(), broken.SourceURL, gomock.Any()).
		Return(nil, errors.New("listing fetch blew up"))
	f.src.EXPECT().Episodes(gomock.Any(), healthy.SourceURL, gomock.Any()).
		Return(listing(1), nil)

	require.NoError(t, f.svc.CheckAllMonitored(context.Background()))

	episodes, err := f.db.ListEpisodesByWork(healthy.ID)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
}

func TestService_FillMissingMetadata(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)
	require.Empty(t, work.Description)

	f.src.EXPECT().Metadata(gomock.Any(), work.SourceURL).Return(&source.Metadata{
		Description:       "A story about a story",
		PublicationStatus: "completed",
	}, nil)

	require.NoError(t, f.svc.FillMissingMetadata(context.Background()))

	got, err := f.db.GetWork(work.ID)
	require.NoError(t, err)
	require.Equal(t, "A story about a story", got.Description)
	require.Equal(t, "completed", got.PublicationStatus)
}

func TestService_RetryFailedUnknownWork(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RetryFailed(404)
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestService_DeleteWorkRemovesContent(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	workDir := filepath.Join(f.libRoot, fmt.Sprintf("Pale (%d)", work.ID))
	require.NoError(t, os.MkdirAll(workDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "0001 - Chapter 1.html"), []byte("x"), 0o644))

	legacyFile := filepath.Join(f.legacy, fmt.Sprintf("%d_pale.html", work.ID))
	require.NoError(t, os.WriteFile(legacyFile, []byte("x"), 0o644))

	require.NoError(t, f.svc.DeleteWork(work.ID, true))

	_, err := f.db.GetWork(work.ID)
	require.ErrorIs(t, err, database.ErrNotFound)
	require.NoDirExists(t, workDir)
	require.NoFileExists(t, legacyFile)
}

func TestService_DeleteWorkKeepsContent(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	workDir := filepath.Join(f.libRoot, fmt.Sprintf("Pale (%d)", work.ID))
	require.NoError(t, os.MkdirAll(workDir, 0o755))

	require.NoError(t, f.svc.DeleteWork(work.ID, false))
	require.DirExists(t, workDir)
}

func TestService_PredictNextRelease(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	// Weekly cadence with the last episode three weeks ago: the prediction
	// lands on the first weekly slot after now, not in the past.
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	start := now.Add(-5 * 7 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		published := start.Add(time.Duration(i) * 7 * 24 * time.Hour)
		ep := &models.Episode{
			WorkID: work.ID, Title: fmt.Sprintf("Ch %d", i+1),
			SourceURL: fmt.Sprintf("https://kemono.su/patreon/user/1/post/%d", i+1),
			Sequence:  i + 1, Status: models.StatusDownloaded,
			PublishedAt: &published, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, f.db.CreateEpisode(ep))
	}

	next, err := f.svc.PredictNextRelease(work.ID)
	require.NoError(t, err)
	require.NotNil(t, next)

	// Last publish was 3 weeks before now; the phase-aligned slot is 1 week
	// from now.
	require.True(t, next.Equal(now.Add(7*24*time.Hour)), "got %s", next)

	dates, err := f.svc.UpcomingReleases(work.ID, 3)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	for i, d := range dates {
		want := now.Add(time.Duration(i+1) * 7 * 24 * time.Hour)
		require.True(t, d.Equal(want), "date %d: got %s", i, d)
	}
}

func TestService_PredictNextReleaseTooFewEpisodes(t *testing.T) {
	f := newFixture(t)
	work := storedWork(t, f.db)

	next, err := f.svc.PredictNextRelease(work.ID)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestService_Search(t *testing.T) {
	f := newFixture(t)

	f.src.EXPECT().Search(gomock.Any(), "inn").Return([]source.SearchResult{
		{Title: "The Wandering Inn", URL: "https://kemono.su/patreon/user/9"},
	}, nil)

	results, err := f.svc.Search(context.Background(), "inn", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	// Results without a provider key are stamped with the source that found them.
	require.Equal(t, "kemono", results[0].ProviderKey)
}

func TestService_SearchSkipsUnsupportedProviders(t *testing.T) {
	f := newFixture(t)

	f.src.EXPECT().Search(gomock.Any(), "inn").Return(nil, source.ErrSearchUnsupported)

	results, err := f.svc.Search(context.Background(), "inn", "")
	require.NoError(t, err)
	require.Empty(t, results)
}

func storedWork(t *testing.T, db *database.DB) *models.Work {
	return storedWorkURL(t, db, "https://kemono.su/patreon/user/1")
}

func storedWorkURL(t *testing.T, db *database.DB, url string) *models.Work {
	t.Helper()
	work := &models.Work{
		SourceURL:         url,
		Title:             "Pale",
		Author:            "Wildbow",
		Status:            models.WorkStatusMonitoring,
		Monitored:         true,
		NotifyNewEpisodes: true,
		ProviderKey:       "kemono",
		CreatedAt:         time.Now(),
	}
	require.NoError(t, db.CreateWork(work))
	return work
}
