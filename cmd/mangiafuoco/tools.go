package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/pkg/errors"
)

// WeatherRequest is the input for the demo weather tool.
type WeatherRequest struct {
	Location string `json:"location" jsonschema:"required,description=The city and country to get weather for"`
	Units    string `json:"units,omitempty" jsonschema:"description=Temperature units (celsius or fahrenheit),default=celsius,enum=celsius,enum=fahrenheit"`
}

type WeatherResponse struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Conditions  string  `json:"conditions"`
	Units       string  `json:"units"`
}

// getWeather returns canned weather data. It exists to exercise the tool
// loop, not to be useful.
func getWeather(req WeatherRequest) WeatherResponse {
	units := req.Units
	if units == "" {
		units = "celsius"
	}
	temp := 22.5
	if units == "fahrenheit" {
		temp = temp*9/5 + 32
	}
	return WeatherResponse{
		Location:    req.Location,
		Temperature: temp,
		Conditions:  "partly cloudy",
		Units:       units,
	}
}

// CalculatorRequest is the input for the demo calculator tool.
type CalculatorRequest struct {
	Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression of the form <number> <op> <number>"`
}

type CalculatorResponse struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// calculate evaluates a single binary arithmetic expression.
func calculate(req CalculatorRequest) (CalculatorResponse, error) {
	fields := strings.Fields(req.Expression)
	if len(fields) != 3 {
		return CalculatorResponse{}, errors.Errorf("expected '<number> <op> <number>', got %q", req.Expression)
	}
	left, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return CalculatorResponse{}, errors.Wrapf(err, "bad left operand %q", fields[0])
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return CalculatorResponse{}, errors.Wrapf(err, "bad right operand %q", fields[2])
	}

	var result float64
	switch fields[1] {
	case "+":
		result = left + right
	case "-":
		result = left - right
	case "*":
		result = left * right
	case "/":
		if right == 0 {
			return CalculatorResponse{}, errors.New("division by zero")
		}
		result = left / right
	default:
		return CalculatorResponse{}, errors.Errorf("unknown operator %q", fields[1])
	}

	return CalculatorResponse{Expression: req.Expression, Result: result}, nil
}

// TimeRequest is the input for the demo clock tool.
type TimeRequest struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name (defaults to UTC)"`
}

type TimeResponse struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

func currentTime(req TimeRequest) (TimeResponse, error) {
	loc := time.UTC
	if req.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(req.Timezone)
		if err != nil {
			return TimeResponse{}, errors.Wrapf(err, "unknown timezone %q", req.Timezone)
		}
	}
	now := time.Now().In(loc)
	return TimeResponse{Time: now.Format(time.RFC3339), Timezone: loc.String()}, nil
}

// buildRegistry registers the demo tools.
func buildRegistry(toolTimeout time.Duration) (tools.Registry, error) {
	registry := tools.NewInMemoryRegistry()

	weather, err := tools.NewToolFromFunc("get_weather", "Get the current weather for a location", getWeather,
		tools.WithTimeout(toolTimeout))
	if err != nil {
		return nil, err
	}
	calculator, err := tools.NewToolFromFunc("calculate", "Evaluate a simple arithmetic expression", calculate,
		tools.WithTimeout(toolTimeout))
	if err != nil {
		return nil, err
	}
	clock, err := tools.NewToolFromFunc("current_time", "Get the current time in a timezone", currentTime,
		tools.WithTimeout(toolTimeout))
	if err != nil {
		return nil, err
	}

	for _, def := range []*tools.Definition{weather, calculator, clock} {
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
