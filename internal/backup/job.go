package backup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job runs one backup pass on the scheduler's cadence.
type Job struct {
	uploader *Uploader
	dbPath   string
	log      zerolog.Logger
}

// NewJob builds a scheduler.Job that uploads dbPath on each invocation.
func NewJob(uploader *Uploader, dbPath string, log zerolog.Logger) *Job {
	return &Job{uploader: uploader, dbPath: dbPath, log: log.With().Str("job", "backup").Logger()}
}

func (j *Job) Name() string { return "backup_snapshot" }

func (j *Job) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	key, checksum, err := j.uploader.UploadSnapshot(ctx, j.dbPath)
	if err != nil {
		return err
	}
	j.log.Info().Str("key", key).Str("checksum", checksum).Msg("backup job complete")
	return nil
}
