package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/batchflows/internal/mq"
)

// eventLine — событие в одну строку для --json.
type eventLine struct {
	Type      mq.MessageType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload"`
}

// NewEventsCmd создаёт группу команд для событий runs.
func NewEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow run events published to RabbitMQ",
	}
	cmd.AddCommand(newEventsWatchCmd(app))
	return cmd
}

func newEventsWatchCmd(app *App) *cobra.Command {
	var (
		url      string
		flowName string
		limit    int
		runsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print run and task events as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := app.Output()
			if url == "" {
				url = mq.URL()
			}
			if url == "" {
				url = mq.DefaultURL()
			}

			conn, err := mq.NewConnection(url, app.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}

			keys := []mq.RoutingKey{mq.RoutingKeyRuns}
			if !runsOnly {
				keys = append(keys, mq.RoutingKeyTasks)
			}

			seen := 0
			consumer := mq.NewConsumer(conn, app.Logger, mq.ConsumerConfig{
				Declare: func(ctx context.Context) (mq.Queue, error) {
					return mq.DeclareWatchQueue(ctx, conn, keys...)
				},
				Handler: func(_ context.Context, d *mq.Delivery) error {
					if !printEvent(out, d, flowName) {
						return nil
					}
					seen++
					if limit > 0 && seen >= limit {
						cancel()
					}
					return nil
				},
				Prefetch: 16,
			})

			err = consumer.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&url, "amqp-url", "", "RabbitMQ URL (default $AMQP_URL)")
	cmd.Flags().StringVar(&flowName, "flow", "", "Only events of this flow")
	cmd.Flags().IntVar(&limit, "limit", 0, "Exit after this many events")
	cmd.Flags().BoolVar(&runsOnly, "runs-only", false, "Skip task events")

	return cmd
}

// printEvent выводит событие; false — событие отфильтровано.
func printEvent(out *Output, d *mq.Delivery, flowName string) bool {
	msg := &d.Message

	if d.IsRun() {
		p, err := mq.ParsePayload[mq.RunPayload](msg)
		if err != nil || (flowName != "" && p.Flow != flowName) {
			return false
		}
		if out.JSONMode() {
			out.JSON(eventLine{Type: msg.Type, Timestamp: msg.Timestamp, Payload: p})
			return true
		}
		out.KeyValues([][2]string{{
			msg.Timestamp.Format(time.TimeOnly),
			fmt.Sprintf("%s %s %s %s", msg.Type, p.Flow, p.RunID, p.Error),
		}})
		return true
	}

	p, err := mq.ParsePayload[mq.TaskPayload](msg)
	if err != nil || (flowName != "" && p.Flow != flowName) {
		return false
	}
	if out.JSONMode() {
		out.JSON(eventLine{Type: msg.Type, Timestamp: msg.Timestamp, Payload: p})
		return true
	}
	out.KeyValues([][2]string{{
		msg.Timestamp.Format(time.TimeOnly),
		fmt.Sprintf("%s %s/%s attempt=%s %s", msg.Type, p.Flow, p.StepID, strconv.Itoa(p.Attempt), dash(p.JobID)),
	}})
	return true
}
