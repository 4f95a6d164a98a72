package compile

import (
	"reflect"
	"testing"
)

func TestSegment_Conjunctions(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{
			in:   "open notepad, wait 5 seconds, type Hello World",
			want: []string{"open notepad", "wait 5 seconds", "type Hello World"},
		},
		{
			in:   "open chrome then click on Settings and then press enter",
			want: []string{"open chrome", "click on Settings", "press enter"},
		},
		{
			in:   "click on File; after that press tab; finally press enter",
			want: []string{"click on File", "press tab", "press enter"},
		},
		{
			in:   "open terminal and type ls",
			want: []string{"open terminal", "type ls"},
		},
	}

	for _, tc := range cases {
		got := Segment(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Segment(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSegment_SearchSuffix(t *testing.T) {
	got := Segment("go to google.com and search for cats")
	want := []string{"go to google.com", "wait 2 seconds", "type cats", "press enter"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segment = %v, want %v", got, want)
	}
}

func TestSegment_SearchSuffixAlone(t *testing.T) {
	got := Segment("search for weather in berlin")
	want := []string{"wait 2 seconds", "type weather in berlin", "press enter"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segment = %v, want %v", got, want)
	}
}

func TestSegment_MidRequestSearchIsItsOwnStep(t *testing.T) {
	got := Segment("go to google.com then search for cats then take a screenshot")
	want := []string{"go to google.com", "search for cats", "take a screenshot"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segment = %v, want %v", got, want)
	}
}

func TestSegment_KeepsCoordinatePhrases(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{
			in:   "click on (120, 340)",
			want: []string{"click on (120, 340)"},
		},
		{
			in:   "click on 120, 340",
			want: []string{"click on 120, 340"},
		},
		{
			in:   "open notepad then click on (10, 20) and type hi",
			want: []string{"open notepad", "click on (10, 20)", "type hi"},
		},
	}
	for _, tc := range cases {
		got := Segment(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Segment(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSegment_DropsEmptyFragments(t *testing.T) {
	got := Segment("open notepad,, and ,then type hi")
	want := []string{"open notepad", "type hi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segment = %v, want %v", got, want)
	}
}

func TestSegment_EmptyRequest(t *testing.T) {
	if got := Segment("   "); got != nil {
		t.Errorf("Segment of blank input = %v, want nil", got)
	}
}
