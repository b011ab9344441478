package db

import (
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/hdprod/internal/model"
)

// ChannelSource implements pgx.CopyFromSource by reading staged tariff rows
// from a channel. The channel gives backpressure between the Parquet reader
// and the COPY writer.
type ChannelSource struct {
	ch      <-chan *model.StagingTariffRow
	current *model.StagingTariffRow
}

// NewChannelSource creates a CopyFromSource backed by a channel.
func NewChannelSource(ch <-chan *model.StagingTariffRow) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// Next advances to the next row. Returns false when the channel is closed.
func (s *ChannelSource) Next() bool {
	row, ok := <-s.ch
	if !ok {
		return false
	}
	s.current = row
	return true
}

// Values returns the current row's values in COPY column order.
func (s *ChannelSource) Values() ([]any, error) {
	return s.current.CopyValues(), nil
}

func (s *ChannelSource) Err() error {
	return nil
}

var _ pgx.CopyFromSource = (*ChannelSource)(nil)
