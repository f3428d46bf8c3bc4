package geo

// Bresenham calls emit for every integer cell on the line from (y1,x1) to (y2,x2),
// including both endpoints. Coordinates are tile indices, not geographic coordinates.
func Bresenham(y1, x1, y2, x2 int, emit func(y, x int)) {
	dLat := abs(y2 - y1)
	dLon := abs(x2 - x1)

	sLat := -1
	if y1 < y2 {
		sLat = 1
	}
	sLon := -1
	if x1 < x2 {
		sLon = 1
	}

	err := dLon - dLat
	for {
		emit(y1, x1)
		if y1 == y2 && x1 == x2 {
			break
		}

		tmpErr := 2 * err
		if tmpErr > -dLat {
			err -= dLat
			x1 += sLon
		}
		if tmpErr < dLon {
			err += dLon
			y1 += sLat
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
