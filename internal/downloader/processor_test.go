package downloader

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
	"serialarr/internal/downloader/mocks"
	"serialarr/internal/fetch"
	"serialarr/internal/library"
	"serialarr/internal/notify"
	"serialarr/internal/source"
	sourcemocks "serialarr/internal/source/mocks"
	"serialarr/pkg/models"
)

type fixture struct {
	processor *Processor
	db        *database.DB
	src       *sourcemocks.MockSource
	compiler  *mocks.MockCompiler
	notifier  *mocks.MockNotifier
	libRoot   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := sourcemocks.NewMockSource(ctrl)
	src.EXPECT().Key().Return("kemono").AnyTimes()
	src.EXPECT().DefaultEnabled().Return(true).AnyTimes()

	registry := source.NewRegistry(nil, fetch.New(fetch.Options{}))
	registry.Register(src)

	libRoot := t.TempDir()
	resolver := library.NewPathResolver(libRoot, library.Formats{
		WorkFolder:   "{Title} ({Id})",
		EpisodeFile:  "{Index} - {Title}",
		VolumeFolder: "Volume {Volume}",
		CompiledName: "{Title} - {Suffix}",
	})

	compiler := mocks.NewMockCompiler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	processor := NewProcessor(db, registry, resolver, compiler, notifier)

	return &fixture{
		processor: processor,
		db:        db,
		src:       src,
		compiler:  compiler,
		notifier:  notifier,
		libRoot:   libRoot,
	}
}

func (f *fixture) work(t *testing.T) *models.Work {
	t.Helper()
	work := &models.Work{
		SourceURL:         "https://kemono.su/patreon/user/1",
		Title:             "Pale",
		Status:            models.WorkStatusMonitoring,
		Monitored:         true,
		NotifyNewEpisodes: true,
		ProviderKey:       "kemono",
		CreatedAt:         time.Now(),
	}
	require.NoError(t, f.db.CreateWork(work))
	return work
}

func (f *fixture) pendingEpisode(t *testing.T, workID int64, sequence int) *models.Episode {
	t.Helper()
	now := time.Now()
	ep := &models.Episode{
		WorkID:    workID,
		Title:     fmt.Sprintf("Chapter %d", sequence),
		SourceURL: fmt.Sprintf("https://kemono.su/patreon/user/1/post/%d", sequence),
		Sequence:  sequence,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.CreateEpisode(ep))
	return ep
}

func TestProcessor_DrainEmptyQueue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor.Drain(context.Background()))
}

func TestProcessor_DrainDownloadsAndCompletes(t *testing.T) {
	f := newFixture(t)
	work := f.work(t)
	first := f.pendingEpisode(t, work.ID, 1)
	second := f.pendingEpisode(t, work.ID, 2)

	f.src.EXPECT().EpisodeContent(gomock.Any(), first.SourceURL).Return("<p>one</p>", nil)
	f.src.EXPECT().EpisodeContent(gomock.Any(), second.SourceURL).Return("<p>two</p>", nil)

	compiled := filepath.Join(f.libRoot, "Pale - Complete.html")
	f.compiler.EXPECT().CompileFullWork(work.ID).Return(compiled, nil)
	f.notifier.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, w *models.Work, payload notify.Payload) error {
			require.Equal(t, work.ID, w.ID)
			require.Equal(t, notify.EventDownload, payload.Event)
			require.Equal(t, compiled, payload.FilePath)
			return nil
		})

	require.NoError(t, f.processor.Drain(context.Background()))

	for _, ep := range []*models.Episode{first, second} {
		got, err := f.db.GetEpisode(ep.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusDownloaded, got.Status)
		require.Nil(t, got.ClaimedAt)

		content, err := os.ReadFile(got.LocalPath)
		require.NoError(t, err)
		require.NotEmpty(t, content)
	}

	history, err := f.db.ListHistoryByWork(work.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestProcessor_DrainIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	work := f.work(t)
	broken := f.pendingEpisode(t, work.ID, 1)
	healthy := f.pendingEpisode(t, work.ID, 2)

	f.src.EXPECT().EpisodeContent(gomock.Any(), broken.SourceURL).
		Return("", errors.New("request failed with status 503"))
	f.src.EXPECT().EpisodeContent(gomock.Any(), healthy.SourceURL).Return("<p>two</p>", nil)

	// The failed episode raises a failure event. The work never completes,
	// so there is no compile and no download event.
	f.notifier.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.Work, payload notify.Payload) error {
			require.Equal(t, notify.EventFailure, payload.Event)
			require.Equal(t, broken.Title, payload.EpisodeTitle)
			require.Contains(t, payload.Detail, "503")
			return nil
		})

	require.NoError(t, f.processor.Drain(context.Background()))

	got, err := f.db.GetEpisode(broken.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)

	got, err = f.db.GetEpisode(healthy.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDownloaded, got.Status)

	history, err := f.db.ListHistoryByWork(work.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestProcessor_CompletionCascadeCompileFailure(t *testing.T) {
	f := newFixture(t)
	work := f.work(t)
	ep := f.pendingEpisode(t, work.ID, 1)

	f.src.EXPECT().EpisodeContent(gomock.Any(), ep.SourceURL).Return("<p>one</p>", nil)
	f.compiler.EXPECT().CompileFullWork(work.ID).Return("", errors.New("disk full"))
	f.notifier.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.Work, payload notify.Payload) error {
			require.Equal(t, notify.EventFailure, payload.Event)
			require.Contains(t, payload.Detail, "compile failed")
			return nil
		})

	require.NoError(t, f.processor.Drain(context.Background()))

	// The episode itself still downloaded fine.
	got, err := f.db.GetEpisode(ep.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDownloaded, got.Status)
}

func TestProcessor_DrainNoProvider(t *testing.T) {
	f := newFixture(t)
	work := f.work(t)
	ep := f.pendingEpisode(t, work.ID, 1)

	f.src.EXPECT().Identify(gomock.Any()).Return(false).AnyTimes()
	work.ProviderKey = "vanished"
	require.NoError(t, f.db.UpdateWork(work))

	f.notifier.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.Work, payload notify.Payload) error {
			require.Equal(t, notify.EventFailure, payload.Event)
			require.Contains(t, payload.Detail, "no provider")
			return nil
		})

	require.NoError(t, f.processor.Drain(context.Background()))

	got, err := f.db.GetEpisode(ep.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
}

func TestProcessor_DrainCanceledContext(t *testing.T) {
	f := newFixture(t)
	work := f.work(t)
	f.pendingEpisode(t, work.ID, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, f.processor.Drain(ctx), context.Canceled)
}
