package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExampleHub_Snapshot follows one era run through the hub.
func ExampleHub_Snapshot() {
	hub := NewHub(Config{FlushInterval: time.Hour})
	run := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	emit := func(stage Stage, bill string, count int) {
		hub.Emit(Event{RunID: run, TS: time.Unix(0, 0), Stage: stage, Era: "1995-2000", Mode: "extract",
			BillID: bill, Attempt: 1, Count: count})
	}

	emit(StageEraStart, "", 0)
	emit(StageListDone, "", 2)
	emit(StageBillDone, "1995-2000-00001", 0)
	emit(StageBillSoftMiss, "1995-2000-00002", 0)
	emit(StageEraDone, "", 2)
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	for _, s := range hub.Snapshot() {
		fmt.Printf("%s %s: %d/%d done, %d soft misses, finished=%t\n",
			s.Era, s.Mode, s.Done, s.Listed, s.SoftMisses, s.Finished)
	}
	// Output:
	// 1995-2000 extract: 2/2 done, 1 soft misses, finished=true
}

// ExampleSink implements a custom Sink that receives a whole run at once.
func ExampleSink() {
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		fmt.Printf("%s: %d events, last %s\n", batch[0].Era, len(batch), batch[len(batch)-1].Stage)
		return nil
	})
	hub := NewHub(Config{FlushInterval: time.Hour}, capture)

	run := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000002"))
	for _, stage := range []Stage{StageEraStart, StageListDone, StageEraDone} {
		hub.Emit(Event{RunID: run, TS: time.Unix(0, 0), Stage: stage, Era: "2016-2021", Mode: "run", Count: 512})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// 2016-2021: 3 events, last ERA_DONE
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
