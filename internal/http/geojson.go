package httpapi

import "github.com/example/carpool-match/internal/models"

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Geometry   point             `json:"geometry"`
	Properties featureProperties `json:"properties"`
}

type point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // lon, lat
}

type featureProperties struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	Image             string        `json:"image,omitempty"`
	Role              models.Role   `json:"role"`
	Status            models.Status `json:"status"`
	SeatAvail         int           `json:"seat_avail"`
	CompanyName       string        `json:"company_name"`
	CompanyPOIAddress string        `json:"company_poi_address"`
	StartPOILocation  string        `json:"start_poi_location"`
	StartPOICoord     models.Coord  `json:"start_poi_coord"`
}

// companyFeatures places each commuter at their company point of interest.
func companyFeatures(pool []models.Commuter) featureCollection {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(pool))}
	for _, c := range pool {
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: point{
				Type:        "Point",
				Coordinates: [2]float64{c.CompanyPOICoord.Lon, c.CompanyPOICoord.Lat},
			},
			Properties: featureProperties{
				ID:                c.ID,
				Name:              c.Name,
				Email:             c.Email,
				Image:             c.Image,
				Role:              c.Role,
				Status:            c.Status,
				SeatAvail:         c.SeatAvail,
				CompanyName:       c.CompanyName,
				CompanyPOIAddress: c.CompanyPOIAddress,
				StartPOILocation:  c.StartPOILocation,
				StartPOICoord:     c.StartPOICoord,
			},
		})
	}
	return fc
}
