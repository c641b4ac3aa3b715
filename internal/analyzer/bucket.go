package analyzer

import "math"

// Bucket is one row of the analyzer's output (spec.md §4.7, §6.4).
type Bucket struct {
	T        int64
	Duration float64
	Bps      int64
	Bytes    int64
	TxIPs    int64
	TxRxIPs  int64
}

// Aggregate buckets flows into fixed-width windows of dt seconds, starting
// at the earliest flow start time, per spec.md §4.7.
func Aggregate(flows []Flow, dt float64) []Bucket {
	if len(flows) == 0 || dt <= 0 {
		return nil
	}

	tMin := flows[0].Start
	tMax := flows[0].Start
	for _, f := range flows {
		if f.Start < tMin {
			tMin = f.Start
		}
		end := float64(f.Start) + f.Elapsed
		if end > float64(tMax) {
			tMax = int64(math.Ceil(end))
		}
	}

	numBuckets := int(math.Ceil(float64(tMax-tMin) / dt))
	if numBuckets < 1 {
		numBuckets = 1
	}
	buckets := make([]Bucket, numBuckets)

	// srcOverlap/destOverlap accumulate, per bucket, the raw (uncapped) sum
	// of overlap seconds contributed by flows where an IP is the source or
	// destination, respectively.
	srcOverlap := make([]map[string]float64, numBuckets)
	destOverlap := make([]map[string]float64, numBuckets)
	for i := range buckets {
		buckets[i].T = int64(float64(i) * dt)
		buckets[i].Duration = dt
		srcOverlap[i] = make(map[string]float64)
		destOverlap[i] = make(map[string]float64)
	}

	for _, f := range flows {
		flowStart := float64(f.Start)
		flowEnd := flowStart + f.Elapsed

		firstBucket := int((flowStart - float64(tMin)) / dt)
		lastBucket := int((flowEnd - float64(tMin)) / dt)
		if firstBucket < 0 {
			firstBucket = 0
		}
		if lastBucket >= numBuckets {
			lastBucket = numBuckets - 1
		}

		for i := firstBucket; i <= lastBucket; i++ {
			bucketStart := float64(tMin) + float64(i)*dt
			bucketEnd := bucketStart + dt

			overlap := math.Min(flowEnd, bucketEnd) - math.Max(flowStart, bucketStart)
			if overlap <= 0 {
				continue
			}

			if f.Elapsed > 0 {
				buckets[i].Bytes += int64(math.Round(float64(f.Bytes) * (overlap / f.Elapsed)))
			}

			srcOverlap[i][f.SrcIP] += overlap
			destOverlap[i][f.DstIP] += overlap
		}
	}

	for i := range buckets {
		buckets[i].Bps = int64(math.Round(float64(buckets[i].Bytes) * 8 / dt))

		var txIPs, txRxIPs float64
		for ip, so := range srcOverlap[i] {
			soCapped := math.Min(dt, so)
			txIPs += soCapped / dt

			if do, isDest := destOverlap[i][ip]; isDest {
				doCapped := math.Min(dt, do)
				txRxIPs += math.Min(soCapped, doCapped) / dt
			}
		}
		buckets[i].TxIPs = int64(math.Round(txIPs))
		buckets[i].TxRxIPs = int64(math.Round(txRxIPs))
	}

	return buckets
}
