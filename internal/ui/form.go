package ui

import (
	"github.com/charmbracelet/bubbles/textinput"

	"cloudweave/internal/request"
)

// Form field order; it is also the tab order.
const (
	fieldLonMin = iota
	fieldLatMin
	fieldLonMax
	fieldLatMax
	fieldStart
	fieldEnd
	fieldZoom
	fieldWorkers
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"lon min", "lat min", "lon max", "lat max", "start", "end", "zoom", "workers",
}

// fieldNames match request.ValidationError.Field.
var fieldNames = [fieldCount]string{
	"lon_min", "lat_min", "lon_max", "lat_max", "start_iso", "end_iso", "zoom", "max_workers",
}

var fieldPlaceholders = [fieldCount]string{
	"70.0", "20.0", "80.0", "30.0", "2024-05-01T00:00", "2024-05-01T06:00", "7", "8",
}

func newInputs(initial request.Raw, styles Styles) []textinput.Model {
	values := rawFields(initial)
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = fieldPlaceholders[i]
		ti.CharLimit = 32
		ti.Width = 20
		ti.PromptStyle = styles.Hint
		ti.SetValue(values[i])
		inputs[i] = ti
	}
	return inputs
}

func rawFields(r request.Raw) [fieldCount]string {
	return [fieldCount]string{r.LonMin, r.LatMin, r.LonMax, r.LatMax, r.Start, r.End, r.Zoom, r.Workers}
}

func formRaw(inputs []textinput.Model) request.Raw {
	v := func(i int) string { return inputs[i].Value() }
	return request.Raw{
		LonMin:  v(fieldLonMin),
		LatMin:  v(fieldLatMin),
		LonMax:  v(fieldLonMax),
		LatMax:  v(fieldLatMax),
		Start:   v(fieldStart),
		End:     v(fieldEnd),
		Zoom:    v(fieldZoom),
		Workers: v(fieldWorkers),
	}
}
