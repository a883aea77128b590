package frame

import (
	"slices"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
)

// Point is one chart value at a (fractional) buffer index.
type Point struct {
	Index float64 `json:"index"`
	Value float64 `json:"value"`
}

// Series keeps the chart history of the scalar channels: the buffer values up to
// the current floor index plus one trailing point at the exact fractional index.
type Series struct {
	channels []model.Channel
	history  map[model.Channel][]float64
	trailing map[model.Channel]Point
	floor    int
}

func NewSeries() *Series {
	s := &Series{channels: model.ScalarChannels}
	s.Reset()
	return s
}

func (s *Series) Reset() {
	s.history = make(map[model.Channel][]float64, len(s.channels))
	s.trailing = make(map[model.Channel]Point, len(s.channels))
	s.floor = -1
}

// Update extends the history up to floor and moves the trailing point to
// floor+frac. The last known floor entry is read again, it may have been
// changed by attack injection after it was first recorded. A floor below the
// recorded one truncates the history.
func (s *Series) Update(src buffer.Reader, floor int, frac float64, cur model.Sample) error {
	from := max(s.floor, 0)
	if floor < s.floor {
		from = floor
	}
	for _, c := range s.channels {
		s.history[c] = s.history[c][:min(from, len(s.history[c]))]
	}
	for i := from; i <= floor; i++ {
		sample, err := src.Get(i)
		if err != nil {
			return err
		}
		for _, c := range s.channels {
			s.history[c] = append(s.history[c], sample.Value(c))
		}
	}
	s.floor = floor
	for _, c := range s.channels {
		s.trailing[c] = Point{Index: float64(floor) + frac, Value: cur.Value(c)}
	}
	return nil
}

// Floor returns the last recorded floor index, -1 if none.
func (s *Series) Floor() int {
	return s.floor
}

// Series returns a copy of the chart points of channel c.
func (s *Series) Series(c model.Channel) []Point {
	h := s.history[c]
	ret := make([]Point, 0, len(h)+1)
	for i, v := range h {
		ret = append(ret, Point{Index: float64(i), Value: v})
	}
	if p, ok := s.trailing[c]; ok {
		ret = append(ret, p)
	}
	return ret
}

func (s *Series) Channels() []model.Channel {
	return slices.Clone(s.channels)
}
