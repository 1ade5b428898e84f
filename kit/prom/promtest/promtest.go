// Package promtest provides helpers for extracting prometheus metrics in
// tests. It depends on the standard library testing package, so it is only
// meant to be imported from test files.
package promtest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MustGather calls g.Gather and calls tb.Fatal on error.
func MustGather(tb testing.TB, g prometheus.Gatherer) []*dto.MetricFamily {
	tb.Helper()

	fams, err := g.Gather()
	if err != nil {
		tb.Fatalf("error while gathering metrics: %v", err)
		return nil
	}
	return fams
}

// FromHTTPResponse parses prometheus metrics out of resp, which must carry
// properly set content-type headers. The response body is always closed.
//
// Useful when testing a /metrics endpoint end to end; for most metric
// assertions, gathering straight from a registry is simpler.
func FromHTTPResponse(resp *http.Response) ([]*dto.MetricFamily, error) {
	defer resp.Body.Close()

	var fams []*dto.MetricFamily
	dec := expfmt.NewDecoder(resp.Body, expfmt.ResponseFormat(resp.Header))
	for {
		fam := new(dto.MetricFamily)
		err := dec.Decode(fam)
		if err == io.EOF {
			return fams, nil
		} else if err != nil {
			return nil, err
		}
		fams = append(fams, fam)
	}
}

// MustFindMetric returns the metric in fams with the given name whose labels
// match labels exactly. Pass nil labels for an unlabeled metric. On a miss it
// logs what was actually available, then fails the test.
func MustFindMetric(tb testing.TB, fams []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	tb.Helper()

	fam := familyWithName(fams, name)
	if fam == nil {
		names := make([]string, len(fams))
		for i, f := range fams {
			names[i] = f.GetName()
		}
		tb.Fatalf("no metric family named %q; gathered families: %s", name, strings.Join(names, ", "))
		return nil
	}

	if m := metricWithLabels(fam, labels); m != nil {
		return m
	}

	tb.Logf("metric family %q has no metric with labels %v", name, labels)
	tb.Logf("label sets present on %q:", name)
	for _, m := range fam.Metric {
		pairs := make([]string, len(m.Label))
		for i, l := range m.Label {
			pairs[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
		}
		tb.Logf("\t{%s}", strings.Join(pairs, ", "))
	}
	tb.FailNow()
	return nil
}

func familyWithName(fams []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, fam := range fams {
		if fam.GetName() == name {
			return fam
		}
	}
	return nil
}

func metricWithLabels(fam *dto.MetricFamily, labels map[string]string) *dto.Metric {
	for _, m := range fam.Metric {
		if len(m.Label) != len(labels) {
			continue
		}
		matched := true
		for _, l := range m.Label {
			if want, ok := labels[l.GetName()]; !ok || want != l.GetValue() {
				matched = false
				break
			}
		}
		if matched {
			return m
		}
	}
	return nil
}
