package sequencer

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/screen"
	"github.com/dialstudy/dialstudy/pkg/video"
)

// Buckets of the stimulus corpus. Each video folder holds a lie and a
// truth recording of the same alibi.
const (
	BucketLie   = 0
	BucketTruth = 1
)

// Names of the datasets that are not keyed by video id.
const (
	PlanDatasetName   = "trial_plan"
	AgeDatasetName    = "demographics_age"
	GenderDatasetName = "demographics_gender"
	RaceDatasetName   = "demographics_race"
)

// Trial is one block of the session.
type Trial struct {
	Block   int // 1-based presentation order
	VideoID int
	Bucket  int
	Path    string
}

// BucketName returns "lie" or "truth".
func BucketName(bucket int) string {
	if bucket == BucketLie {
		return "lie"
	}
	return "truth"
}

// VideoPath returns the stimulus file of a video id and bucket.
func VideoPath(id, bucket int) string {
	return fmt.Sprintf("videos/%d/alibi%d_control_trimmed.webm", id, bucket+1)
}

// idPool draws ids without replacement.
type idPool struct {
	ids []int
}

func newIDPool(ids []int) *idPool {
	return &idPool{ids: append([]int(nil), ids...)}
}

// draw removes and returns a random id by swapping it with the last one.
func (p *idPool) draw(rng *rand.Rand) int {
	i := rng.Intn(len(p.ids))
	id := p.ids[i]
	last := len(p.ids) - 1
	p.ids[i] = p.ids[last]
	p.ids = p.ids[:last]
	return id
}

// bucketPool hands out buckets so the totals match its initial counts
// whatever the draw order.
type bucketPool struct {
	counts [2]int
}

// newBucketPool splits n evenly, crediting the odd one to the lie bucket.
func newBucketPool(n int) *bucketPool {
	return &bucketPool{counts: [2]int{(n + 1) / 2, n / 2}}
}

// draw picks a bucket at random, falling through to the other one when
// the pick is exhausted.
func (p *bucketPool) draw(rng *rand.Rand) int {
	b := rng.Intn(2)
	if p.counts[b] == 0 {
		b = 1 - b
	}
	p.counts[b]--
	return b
}

// PlanTrials draws n trials from ids. It panics when n exceeds the pool;
// experiment.Document.Validate rejects such documents.
func PlanTrials(ids []int, n int, rng *rand.Rand) []Trial {
	if n > len(ids) {
		panic(fmt.Sprintf("sequencer: %d trials requested from %d videos", n, len(ids)))
	}
	videos := newIDPool(ids)
	buckets := newBucketPool(n)

	trials := make([]Trial, n)
	for i := range trials {
		id := videos.draw(rng)
		b := buckets.draw(rng)
		trials[i] = Trial{Block: i + 1, VideoID: id, Bucket: b, Path: VideoPath(id, b)}
	}
	return trials
}

// PlanDataset records the drawn trials for downstream analysis.
func PlanDataset(trials []Trial, p experiment.Participant) *dataset.Dataset {
	rows := make([]string, len(trials))
	for i, t := range trials {
		rows[i] = fmt.Sprintf("%d,%d,%d,%s,%t,%s",
			t.Block, t.VideoID, t.Bucket, t.Path, p.Counterbalance, p.Condition)
	}
	return dataset.New(PlanDatasetName, "block,video_id,bucket,path,counterbalance,condition", rows...)
}

// Dataset names of the per-trial screens, keyed by video id.
func DynamicName(videoID int) string { return "lie_truth_dynamic_" + strconv.Itoa(videoID) }
func DichotomousName(videoID int) string { return "lie_truth_dichotomous_" + strconv.Itoa(videoID) }
func ConfidenceName(videoID int) string { return "confidence_" + strconv.Itoa(videoID) }
func LockInName(videoID int) string { return "lie_truth_lock_in_" + strconv.Itoa(videoID) }
func LockInDecisionName(videoID int) string {
	return "lie_truth_lock_in_decision_" + strconv.Itoa(videoID)
}

// trialScreens builds the screens of one block for a condition.
func trialScreens(t Trial, p experiment.Participant, total int, opener video.Opener, clk clock.Clock) []screen.Screen {
	var screens []screen.Screen
	mirror := p.Counterbalance

	switch p.Condition {
	case experiment.ConditionDynamic:
		screens = append(screens, screen.NewRatingVideo(screen.RatingVideoOptions{
			Name:        DynamicName(t.VideoID),
			URI:         t.Path,
			Mirror:      mirror,
			AllowLockIn: true,
		}, opener, clk))
	case experiment.ConditionDichotomous:
		screens = append(screens,
			screen.NewRatingVideo(screen.RatingVideoOptions{
				Name:   DynamicName(t.VideoID),
				URI:    t.Path,
				Mirror: mirror,
			}, opener, clk),
			screen.NewRating(screen.DichotomousOptions(DichotomousName(t.VideoID), mirror), clk),
		)
	case experiment.ConditionLockIn:
		screens = append(screens,
			screen.NewLockInVideo(LockInName(t.VideoID), t.Path, opener),
			screen.NewRating(screen.DichotomousOptions(LockInDecisionName(t.VideoID), mirror), clk),
		)
	default:
		panic("sequencer: unknown condition " + p.Condition)
	}

	screens = append(screens,
		screen.NewRating(screen.ConfidenceOptions(ConfidenceName(t.VideoID)), clk),
		reminderScreen(t, total),
	)
	return screens
}
