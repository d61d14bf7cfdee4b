package media

// Bucket is one of the fixed target video lengths a track is rounded up into
type Bucket struct {
	Label   string `json:"label"`
	Seconds int    `json:"seconds"`
}

// Buckets in ascending order. Durations above the last one clamp to it.
var Buckets = []Bucket{
	{Label: "XS", Seconds: 30},
	{Label: "S", Seconds: 60},
	{Label: "M", Seconds: 120},
	{Label: "L", Seconds: 180},
	{Label: "XL", Seconds: 240},
}

// BucketFor returns the smallest bucket whose length is >= seconds
func BucketFor(seconds float64) Bucket {
	for _, b := range Buckets {
		if seconds <= float64(b.Seconds) {
			return b
		}
	}
	return Buckets[len(Buckets)-1]
}
