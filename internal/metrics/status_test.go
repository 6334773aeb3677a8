package metrics

import (
	"reflect"
	"testing"
)

func TestRankErrors(t *testing.T) {
	tests := []struct {
		name   string
		errs   map[string]int64
		failed int64
		want   []ErrorRow
	}{
		{
			name: "nil histogram",
			errs: nil,
			want: nil,
		},
		{
			name: "empty histogram",
			errs: map[string]int64{},
			want: nil,
		},
		{
			name:   "single kind",
			errs:   map[string]int64{LabelConnectRefused: 4},
			failed: 4,
			want: []ErrorRow{
				{Label: LabelConnectRefused, Count: 4, Percent: 100},
			},
		},
		{
			name: "sorted by count desc",
			errs: map[string]int64{
				"HTTPStatus:503":    1,
				LabelConnectTimeout: 3,
			},
			failed: 4,
			want: []ErrorRow{
				{Label: LabelConnectTimeout, Count: 3, Percent: 75},
				{Label: "HTTPStatus:503", Count: 1, Percent: 25},
			},
		},
		{
			name: "tie breaking by label",
			errs: map[string]int64{
				LabelDNSFailure:   2,
				LabelConnectReset: 2,
			},
			failed: 4,
			want: []ErrorRow{
				{Label: LabelConnectReset, Count: 2, Percent: 50},
				{Label: LabelDNSFailure, Count: 2, Percent: 50},
			},
		},
		{
			name:   "zero failed yields zero percent",
			errs:   map[string]int64{LabelReadTimeout: 1},
			failed: 0,
			want: []ErrorRow{
				{Label: LabelReadTimeout, Count: 1, Percent: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RankErrors(tt.errs, tt.failed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RankErrors() = %v, want %v", got, tt.want)
			}
		})
	}
}
