package core

import (
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "integer", input: "12", want: 1200},
		{name: "dot separator", input: "12.34", want: 1234},
		{name: "comma separator", input: "12,34", want: 1234},
		{name: "one decimal digit", input: "5.5", want: 550},
		{name: "three decimals rounds half up", input: "1.005", want: 101},
		{name: "three decimals rounds down", input: "1.004", want: 100},
		{name: "leading dot", input: ".50", want: 50},
		{name: "whitespace trimmed", input: "  7.25  ", want: 725},
		{name: "empty", input: "", wantErr: true},
		{name: "zero rejected", input: "0", wantErr: true},
		{name: "zero decimal rejected", input: "0.00", wantErr: true},
		{name: "negative rejected", input: "-5", wantErr: true},
		{name: "plus sign rejected", input: "+5", wantErr: true},
		{name: "letters rejected", input: "abc", wantErr: true},
		{name: "two separators rejected", input: "1.2.3", wantErr: true},
		{name: "mixed digits rejected", input: "1a.50", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("ParseDecimalToCents(%q) error = %v, want ErrInvalidAmount", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalToCents(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSignedDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "positive", input: "12.34", want: 1234},
		{name: "negative", input: "-50.00", want: -5000},
		{name: "negative comma", input: "-0,50", want: -50},
		{name: "zero", input: "0", want: 0},
		{name: "zero decimal", input: "0.00", want: 0},
		{name: "whitespace trimmed", input: " -7.25 ", want: -725},
		{name: "empty", input: "", wantErr: true},
		{name: "bare minus", input: "-", wantErr: true},
		{name: "double minus", input: "--5", wantErr: true},
		{name: "plus sign rejected", input: "+5", wantErr: true},
		{name: "letters rejected", input: "-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignedDecimalToCents(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("ParseSignedDecimalToCents(%q) error = %v, want ErrInvalidAmount", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignedDecimalToCents(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSignedDecimalToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDayOfMonth(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "1", want: 1},
		{input: "31", want: 31},
		{input: " 15 ", want: 15},
		{input: "0", wantErr: true},
		{input: "32", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDayOfMonth(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDay) {
					t.Errorf("ParseDayOfMonth(%q) error = %v, want ErrInvalidDay", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDayOfMonth(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDayOfMonth(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoneyUnits(t *testing.T) {
	if got := (Money{Cents: 1234}).Units(); got != 12.34 {
		t.Errorf("Units() = %v, want 12.34", got)
	}
	if got := (Money{Cents: -50}).Units(); got != -0.5 {
		t.Errorf("Units() = %v, want -0.5", got)
	}
}
