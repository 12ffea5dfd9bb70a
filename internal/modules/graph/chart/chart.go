// Package chart builds the Chart.js line configuration for soil and ambient
// temperature. A Chart marshals to exactly what `new Chart(ctx, config)` expects.
package chart

import "github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"

const (
	DefaultTitle = "Soil and ambient temperature"

	SoilLabel           = "Soil temperature"
	SoilBorderColor     = "rgb(255, 99, 132)"
	SoilBackgroundColor = "rgba(255, 99, 132, 0.5)"

	AmbientLabel           = "Ambient temperature"
	AmbientBorderColor     = "rgb(53, 162, 235)"
	AmbientBackgroundColor = "rgba(53, 162, 235, 0.5)"

	LegendTop = "top"
)

type Chart struct {
	Type    string  `json:"type"`
	Data    Data    `json:"data"`
	Options Options `json:"options"`
}

type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor"`
	BackgroundColor string    `json:"backgroundColor"`
}

type Options struct {
	Responsive bool    `json:"responsive"`
	Plugins    Plugins `json:"plugins"`
}

type Plugins struct {
	Legend Legend `json:"legend"`
	Title  Title  `json:"title"`
}

type Legend struct {
	Position string `json:"position"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

// Build projects records into labels and two aligned series, in record order.
// An empty title falls back to DefaultTitle.
func Build(records []types.Measurement, title string) Chart {
	if title == "" {
		title = DefaultTitle
	}

	labels := make([]string, 0, len(records))
	soil := make([]float64, 0, len(records))
	ambient := make([]float64, 0, len(records))
	for _, r := range records {
		labels = append(labels, r.DateTime)
		soil = append(soil, r.SoilTemp)
		ambient = append(ambient, r.AmbientTemp)
	}

	return Chart{
		Type: "line",
		Data: Data{
			Labels: labels,
			Datasets: []Dataset{
				{Label: SoilLabel, Data: soil, BorderColor: SoilBorderColor, BackgroundColor: SoilBackgroundColor},
				{Label: AmbientLabel, Data: ambient, BorderColor: AmbientBorderColor, BackgroundColor: AmbientBackgroundColor},
			},
		},
		Options: Options{
			Responsive: true,
			Plugins: Plugins{
				Legend: Legend{Position: LegendTop},
				Title:  Title{Display: true, Text: title},
			},
		},
	}
}
