// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package iiifpipeline

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/scantile/iiifpipeline/internal/status"
)

const maxticks = 40

type graphPoint struct {
	num, seconds float64
	key          string
}

// createLine creates a horizontal line with a particular y value for
// a graph
func createLine(xvalues []float64, y float64, c drawing.Color) chart.ContinuousSeries {
	var yvalues []float64
	for range xvalues {
		yvalues = append(yvalues, y)
	}
	return chart.ContinuousSeries{
		XValues: xvalues,
		YValues: yvalues,
		Style: chart.Style{
			StrokeColor: c,
		},
	}
}

// Graph creates a graph of the conversion time of each artifact of a
// record, in upload order, with the slowest and fastest tenth marked.
func Graph(arts []status.Artifact, recordID string, w io.Writer) error {
	var points []graphPoint
	i := float64(1)
	for _, a := range arts {
		if a.State != status.StateFinished || a.Started.IsZero() || a.Finished.IsZero() {
			continue
		}
		points = append(points, graphPoint{
			num:     i,
			seconds: a.Finished.Sub(a.Started).Seconds(),
			key:     a.Key,
		})
		i++
	}
	if len(points) < 2 {
		return errors.New("Not enough finished conversions to graph")
	}

	var xvalues, yvalues []float64
	var ticks []chart.Tick
	var total float64
	tickevery := len(points) / maxticks
	if tickevery < 1 {
		tickevery = 1
	}
	for i, p := range points {
		xvalues = append(xvalues, p.num)
		yvalues = append(yvalues, p.seconds)
		total += p.seconds
		if i%tickevery == 0 {
			ticks = append(ticks, chart.Tick{Value: p.num, Label: fmt.Sprintf("%.0f", p.num)})
		}
	}
	final := points[len(points)-1]
	ticks[len(ticks)-1] = chart.Tick{Value: final.num, Label: fmt.Sprintf("%.0f", final.num)}

	mainSeries := chart.ContinuousSeries{
		Style: chart.Style{
			StrokeColor: chart.ColorBlue,
			FillColor:   chart.ColorAlternateBlue,
		},
		XValues: xvalues,
		YValues: yvalues,
	}

	meanSeries := createLine(xvalues, total/float64(len(points)), chart.ColorAlternateGreen)

	// Mark the slowest and fastest tenth of conversions
	sorted := make([]graphPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].seconds < sorted[j].seconds })
	low := sorted[len(sorted)/10].seconds
	high := sorted[(len(sorted)/10)*9].seconds
	lowSeries := createLine(xvalues, low, chart.ColorAlternateGray)
	highSeries := createLine(xvalues, high, chart.ColorAlternateGray)

	var annotations []chart.Value2
	for _, p := range points {
		if p.seconds > high || p.seconds < low {
			annotations = append(annotations, chart.Value2{Label: p.key, XValue: p.num, YValue: p.seconds})
		}
	}

	graph := chart.Chart{
		Title:  recordID,
		Width:  3840,
		Height: 2160,
		XAxis: chart.XAxis{
			Name: "Artifact",
			Range: &chart.ContinuousRange{
				Min: 0.0,
			},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name: "Conversion time (s)",
			Range: &chart.ContinuousRange{
				Min: 0.0,
			},
		},
		Series: []chart.Series{
			mainSeries,
			meanSeries,
			lowSeries,
			highSeries,
			chart.AnnotationSeries{
				Annotations: annotations,
			},
		},
	}
	return graph.Render(chart.PNG, w)
}
