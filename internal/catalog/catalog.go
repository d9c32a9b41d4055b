// Package catalog maps detector class ids to human readable labels.
package catalog

// Fallback is the label used for class ids the catalog does not know.
const Fallback = "Obj"

// labels holds the construction-site classes the detector was trained on,
// indexed by class id.
var labels = [...]string{
	"Dump Truck",       // 0
	"Excavator",        // 1
	"Front End Loader", // 2
	"Gloves ON",        // 3
	"Gloves-OFF",       // 4
	"Hard Hat OFF",     // 5
	"Hard Hat ON",      // 6
	"Ladder",           // 7
	"Safety Vest OFF",  // 8
	"Safety Vest ON",   // 9
	"Skid Steer",       // 10
	"Tractor Trailer",  // 11
	"Trailer",          // 12
	"Vehicle",          // 13
	"Worker",           // 14
}

// Len returns the number of known classes.
func Len() int {
	return len(labels)
}

// Label returns the label for the given class id, or Fallback if the id
// is out of range.
func Label(classID int) string {
	if classID < 0 || classID >= len(labels) {
		return Fallback
	}
	return labels[classID]
}

// Labels returns a copy of the catalog in class id order.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels[:])
	return out
}
