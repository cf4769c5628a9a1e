package usecase

import (
	"context"
	"errors"
	"fmt"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/infra/logging"
	"social-pipeline/internal/infra/metrics"
)

// stageFunc does the work of one stage and returns the cells it wants
// written to the current row on success.
type stageFunc func(ctx context.Context, st *State) (model.RowUpdate, error)

// execute wraps fn with the bookkeeping shared by every stage:
//   - a state that already carries an error is passed through untouched;
//   - success resets the stage retry counter and stamps its timestamp;
//   - failure increments the counter, stamps the timestamp, marks the row
//     error and records the error in the state.
//
// The current row is read after fn returns, since extract_content is the
// stage that selects it.
func (e *Engine) execute(ctx context.Context, stage model.Stage, st *State, fn stageFunc) {
	if st.Error != "" {
		metrics.ObserveStage(string(stage), "skipped", 0)
		return
	}
	ctx = logging.WithStage(ctx, string(stage))
	start := e.now()

	upd, err := fn(ctx, st)
	item := st.Current
	if item != nil {
		ctx = logging.WithRow(ctx, item.Row)
	}
	log := logging.With(ctx, e.log)

	if errors.Is(err, errStageSkipped) {
		metrics.ObserveStage(string(stage), "skipped", 0)
		log.Debug().Msg("stage skipped")
		return
	}
	if err != nil {
		st.fail(stage, err)
		metrics.ObserveStage(string(stage), "error", e.now().Sub(start))
		log.Error().Err(err).Msg("stage failed")
		if item == nil {
			return
		}
		retries := item.Retries(stage) + 1
		u := model.RowUpdate{}.
			Touch(stage, e.now()).
			SetRetries(stage, retries).
			SetStatus(model.Failed(st.Error, retries))
		if werr := e.write(ctx, item, u); werr != nil {
			log.Error().Err(werr).Msg("failed to record stage failure")
		}
		return
	}

	if item != nil {
		if upd == nil {
			upd = model.RowUpdate{}
		}
		upd.Touch(stage, e.now()).SetRetries(stage, 0)
		if werr := e.write(ctx, item, upd); werr != nil {
			st.fail(stage, fmt.Errorf("write row: %w", werr))
			metrics.ObserveStage(string(stage), "error", e.now().Sub(start))
			log.Error().Err(werr).Msg("stage succeeded but row update failed")
			return
		}
	}
	metrics.ObserveStage(string(stage), "ok", e.now().Sub(start))
	log.Debug().Dur("duration", e.now().Sub(start)).Msg("stage done")
}

func (e *Engine) write(ctx context.Context, item *model.WorkItem, u model.RowUpdate) error {
	if err := e.deps.Rows.Update(ctx, item.Row, u); err != nil {
		return err
	}
	item.Apply(u)
	return nil
}
