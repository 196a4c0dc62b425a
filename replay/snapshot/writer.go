package snapshot

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/wbrown/janus-replay/replay"
)

// WriteParquet writes records to dir/details.parquet, creating dir if needed
func WriteParquet(dir string, records []replay.MatchRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	rows := make([]detailsRow, len(records))
	for i, r := range records {
		rows[i] = toDetailsRow(r)
	}
	if err := parquet.WriteFile(detailsPath(dir), rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", DetailsFile, err)
	}
	return nil
}

// WriteUnitBorn writes events to dir/unit_born.parquet, creating dir if needed
func WriteUnitBorn(dir string, events []replay.UnitBornEvent) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	rows := make([]unitBornRow, len(events))
	for i, e := range events {
		rows[i] = toUnitBornRow(e)
	}
	if err := parquet.WriteFile(unitBornPath(dir), rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", UnitBornFile, err)
	}
	return nil
}
