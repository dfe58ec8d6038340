package mapview

import "math"

// tileSize is the pixel width of the world at zoom 0.
const tileSize = 512.0

const maxMercatorLat = 85.05112878

func mercatorX(lng, worldSize float64) float64 {
	return (lng + 180) / 360 * worldSize
}

func mercatorY(lat, worldSize float64) float64 {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	s := math.Sin(lat * math.Pi / 180)
	return (0.5 - math.Log((1+s)/(1-s))/(4*math.Pi)) * worldSize
}

func mercatorLng(x, worldSize float64) float64 {
	return x/worldSize*360 - 180
}

func mercatorLat(y, worldSize float64) float64 {
	n := math.Pi - 2*math.Pi*y/worldSize
	return 180 / math.Pi * math.Atan(math.Sinh(n))
}

// ViewportAround returns the viewport of a width x height canvas centered on
// center at zoom.
func ViewportAround(center LatLng, zoom float64, width, height int) Viewport {
	world := tileSize * math.Pow(2, zoom)
	cx, cy := mercatorX(center.Lng, world), mercatorY(center.Lat, world)
	hw, hh := float64(width)/2, float64(height)/2
	return Viewport{
		SouthWest: LatLng{Lat: mercatorLat(cy+hh, world), Lng: mercatorLng(cx-hw, world)},
		NorthEast: LatLng{Lat: mercatorLat(cy-hh, world), Lng: mercatorLng(cx+hw, world)},
		Zoom:      zoom,
	}
}

// Unproject converts a canvas pixel to a coordinate for a width x height
// canvas showing v.
func Unproject(v Viewport, pt ScreenPoint, width, height int) LatLng {
	world := tileSize * math.Pow(2, v.Zoom)
	left := mercatorX(v.SouthWest.Lng, world)
	top := mercatorY(v.NorthEast.Lat, world)
	right := mercatorX(v.NorthEast.Lng, world)
	bottom := mercatorY(v.SouthWest.Lat, world)
	x := left + (right-left)*pt.X/float64(width)
	y := top + (bottom-top)*pt.Y/float64(height)
	return LatLng{Lat: mercatorLat(y, world), Lng: mercatorLng(x, world)}
}

// Project converts a coordinate to a canvas pixel; the inverse of Unproject.
func Project(v Viewport, p LatLng, width, height int) ScreenPoint {
	world := tileSize * math.Pow(2, v.Zoom)
	left := mercatorX(v.SouthWest.Lng, world)
	top := mercatorY(v.NorthEast.Lat, world)
	right := mercatorX(v.NorthEast.Lng, world)
	bottom := mercatorY(v.SouthWest.Lat, world)
	return ScreenPoint{
		X: (mercatorX(p.Lng, world) - left) / (right - left) * float64(width),
		Y: (mercatorY(p.Lat, world) - top) / (bottom - top) * float64(height),
	}
}
