// Package framecollector builds image datasets from live video streams.
//
// A Collector opens a stream (RTSP via GStreamer, or any URI uridecodebin
// understands), reads decoded frames in capture order, keeps the ones a
// sampling Policy accepts and archives them as JPEG files under a
// date-partitioned directory tree. The output feeds downstream labeling and
// training; only informative frames are kept.
//
// # Quick Start
//
// Continuous, change-triggered collection:
//
//	source, err := framecollector.NewRTSPSource(framecollector.RTSPConfig{
//	    URL:          "rtsp://192.168.1.100/stream",
//	    Resolution:   framecollector.Res720p,
//	    SourceStream: "camera-1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	archiver, err := framecollector.NewArchiver("./data/raw", 95, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	collector, err := framecollector.New(framecollector.Config{
//	    Source:         source,
//	    Archiver:       archiver,
//	    ReconnectAfter: framecollector.DefaultReconnectAfter,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := collector.Collect(ctx, framecollector.ContinuousOptions{
//	    Interval:  time.Second,
//	    Threshold: 0.05,
//	    Duration:  10 * time.Minute,
//	})
//
// Random collection of a fixed number of frames:
//
//	records, summary, err := collector.CollectRandomSamples(ctx, framecollector.RandomOptions{
//	    Duration: 10 * time.Minute,
//	    Samples:  50,
//	})
//
// # Sampling Policies
//
// ContinuousPolicy accepts a frame when at least Interval has passed since
// the last accepted frame AND its luminance difference from that frame is at
// least Threshold. The interval gate runs first, so rate-limited frames never
// pay for change detection. The session ends on Duration or MaxFrames,
// whichever comes first (both optional).
//
// RandomPolicy draws Samples distinct whole-second offsets from
// [0, Duration) up front and accepts the first frame at or after each one,
// with no change detection. It ends once every offset was consumed or the
// duration elapsed. An offset is consumed only when its frame was saved.
//
// # Change Detection
//
// Both frames are converted to grayscale and resized to 256×256 before the
// mean absolute pixel difference is taken and normalized to [0, 1]. Frames
// of different resolutions are therefore comparable. A missing baseline
// scores 1.0, so the first frame of a session is always novel.
//
// # Output Layout
//
//	<root>/<YYYY-MM-DD>/frame_<HHMMSS>_<NNNNNN>.jpg
//
// NNNNNN is the session-scoped save sequence. Existing files are never
// overwritten. Directories are created on the first save.
//
// # Error Handling
//
//   - Open failure: fatal, no frame is read, nothing is written (ErrStreamOpen)
//   - Read failure: logged, fixed backoff, retried; after ReconnectAfter
//     consecutive failures the source is reopened with exponential backoff
//     (ErrSourceUnavailable once reopening is exhausted). Only errors wrapping
//     ErrReadFailed or ErrEndOfStream are retried; any other read error is
//     fatal (ErrSourceUnavailable)
//   - Save failure: logged, frame skipped, session continues
//   - Output root not creatable: fatal (ErrOutputUnavailable)
//   - Context cancellation: graceful stop, nil error, summary still returned
//
// The source is released exactly once per successful open, on every exit path.
package framecollector
