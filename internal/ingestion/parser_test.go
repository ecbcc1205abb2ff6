package ingestion_test

import (
	"testing"
	"time"

	"MarginCore/internal/assets"
	"MarginCore/internal/ingestion"
)

// -----------------------------------------------------------------------------
// ParseBidAsk
// -----------------------------------------------------------------------------

func TestParseBidAskValid(t *testing.T) {
	payload := []byte(`{"instrument":"BTCUSDT","bid":22300.5,"ask":22301.0,"timestamp_us":1756708200000000}`)

	bidask, err := ingestion.ParseBidAsk(payload)
	if err != nil {
		t.Fatalf("ParseBidAsk: %v", err)
	}

	if bidask.Instrument != assets.InstrumentSymbol("BTCUSDT") {
		t.Errorf("instrument = %q, want BTCUSDT", bidask.Instrument)
	}
	if bidask.Bid != 22300.5 {
		t.Errorf("bid = %v, want 22300.5", bidask.Bid)
	}
	if bidask.Ask != 22301.0 {
		t.Errorf("ask = %v, want 22301.0", bidask.Ask)
	}

	want := time.UnixMicro(1756708200000000).UTC()
	if !bidask.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", bidask.Timestamp, want)
	}
	if bidask.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", bidask.Timestamp.Location())
	}
}

func TestParseBidAskInvalid(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"instrument":`},
		{"missing instrument", `{"bid":1.0,"ask":1.1,"timestamp_us":1}`},
		{"zero bid", `{"instrument":"ETHUSDT","bid":0,"ask":1.1,"timestamp_us":1}`},
		{"negative ask", `{"instrument":"ETHUSDT","bid":1.0,"ask":-1.1,"timestamp_us":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingestion.ParseBidAsk([]byte(tc.payload)); err == nil {
				t.Errorf("ParseBidAsk(%s) = nil error, want error", tc.payload)
			}
		})
	}
}
