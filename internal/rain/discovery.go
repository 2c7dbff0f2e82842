package rain

import (
	"github.com/thatsimonsguy/rain-sensor/internal/model"
	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

// Discover returns the first rain gauge module, scanning stations and then
// modules in list order.
func Discover(stations []weather.Station) (model.Identity, error) {
	for _, st := range stations {
		for _, m := range st.Modules {
			if m.Type == weather.RainGaugeType {
				return model.Identity{StationID: st.ID, ModuleID: m.ID}, nil
			}
		}
	}
	return model.Identity{}, ErrModuleNotFound
}
