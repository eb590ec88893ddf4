package persistence

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ExportCSV writes a run's trace in the classic log layout:
// Episode,Step,Action,Reward,Done followed by one column per cell. Step 0
// rows carry None for action and reward.
func (db *DB) ExportCSV(w io.Writer, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	rows, err := db.Steps(runID)
	if err != nil {
		return fmt.Errorf("load steps: %w", err)
	}

	n := run.ArenaSize * run.ArenaSize
	cw := csv.NewWriter(w)

	header := make([]string, 0, 5+n)
	header = append(header, "Episode", "Step", "Action", "Reward", "Done")
	for i := 0; i < n; i++ {
		header = append(header, strconv.Itoa(i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, 5+n)
	for _, r := range rows {
		if len(r.Cells) != n {
			return fmt.Errorf("episode %d step %d: %d cells, want %d", r.Episode, r.Step, len(r.Cells), n)
		}
		record[0] = strconv.Itoa(r.Episode)
		record[1] = strconv.Itoa(r.Step)
		record[2] = nullInt(r.Action.Int64, r.Action.Valid)
		record[3] = nullInt(r.Reward.Int64, r.Reward.Valid)
		record[4] = "False"
		if r.Done {
			record[4] = "True"
		}
		for i := 0; i < n; i++ {
			record[5+i] = r.Cells[i : i+1]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func nullInt(v int64, ok bool) string {
	if !ok {
		return "None"
	}
	return strconv.FormatInt(v, 10)
}
