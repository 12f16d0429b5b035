// temp_janitor.go — плановая очистка временного каталога вложений.
// Файлы, брошенные оборванными запросами, удаляются по расписанию robfig/cron.
package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// TempJanitor удаляет временные файлы старше maxAge.
type TempJanitor struct {
	store  *attachment.Store
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
	logger *slog.Logger
}

// NewTempJanitor создаёт задачу очистки. schedule — выражение cron
// (5 полей или дескриптор вида "@every 1h").
func NewTempJanitor(store *attachment.Store, schedule string, maxAge time.Duration, logger *slog.Logger) (*TempJanitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("возраст временных файлов должен быть положительным, получено %s", maxAge)
	}

	j := &TempJanitor{
		store:  store,
		maxAge: maxAge,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:    time.Now,
		logger: logger.With(slog.String("component", "temp_janitor")),
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.Sweep() }); err != nil {
		return nil, fmt.Errorf("некорректное расписание %q: %w", schedule, err)
	}
	return j, nil
}

// Start запускает планировщик в фоне.
func (j *TempJanitor) Start() {
	j.cron.Start()
	j.logger.Info("Очистка временных файлов запущена",
		slog.String("max_age", j.maxAge.String()),
		slog.String("dir", j.store.TempDir()),
	)
}

// Stop останавливает планировщик и дожидается завершения текущей очистки.
func (j *TempJanitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Очистка временных файлов остановлена")
}

// Sweep выполняет одну очистку и возвращает число удалённых файлов.
func (j *TempJanitor) Sweep() int {
	removed, err := j.store.SweepTemp(j.now().Add(-j.maxAge))
	if err != nil {
		j.logger.Warn("Ошибка очистки временных файлов", slog.String("error", err.Error()))
	}
	if removed > 0 {
		j.logger.Info("Удалены брошенные временные файлы", slog.Int("count", removed))
	}
	return removed
}
