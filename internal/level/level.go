package level

// PointsPerLevel is the number of points between consecutive levels.
const PointsPerLevel = 100

// For returns the level for a cumulative point total. Level 1 starts at 0.
func For(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}

// Rank returns the title for a level.
func Rank(level int) string {
	switch {
	case level >= 50:
		return "Galactic Hero"
	case level >= 20:
		return "Captain Awesome"
	case level >= 10:
		return "Super Sidekick"
	case level >= 5:
		return "Junior Ranger"
	default:
		return "Novice Explorer"
	}
}

// ToNext returns the points still needed to reach the next level.
func ToNext(points int) int {
	if points < 0 {
		points = 0
	}
	return PointsPerLevel - points%PointsPerLevel
}

// Progress returns how far into the current level points is, as a percentage.
func Progress(points int) int {
	if points < 0 {
		return 0
	}
	return points % PointsPerLevel * 100 / PointsPerLevel
}
