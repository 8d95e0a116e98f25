// Package transcode converts live media between codecs on demand.
//
// Key pieces include:
//   - Controller, a demand gate that forwards or transcodes a stream's
//     frames depending on how many readers are attached
//   - Decoder and Encoder bridges over pluggable codec engines, choosing
//     hardware engines first and falling back to software
//   - TaskQueue workers with per-direction drop policies
//   - AudioFifo, Resampler and Rescaler for raw frame conversion
//   - ADTS framing (AACTrack), G711 conversion and NAL unit merging
//   - Sinks writing RTP packets or WebRTC samples
//   - A prometheus Collector exporting per-session statistics
//
// # Architecture
//
//	Transcode: Frame -> Controller -> Decoder -> RawFrame -> Encoder -> Frame -> Sink
//	Forward:   Frame -> Controller -> Sink
//
// Frames carry compressed units with millisecond timestamps. Raw audio is
// resampled to the parameters the encoder negotiated and repacked to its
// frame size; raw video is rescaled when its size changes mid-stream.
//
// # Engines
//
// Engines register with a Registry. G711 and L16 engines are pure Go. The
// native engines load their wrapper library at runtime with purego, on
// first open:
//
//	libopus               libstream_opus  STREAM_OPUS_LIB_PATH
//	libvpx, libvpx-vp9    libmedia_vpx    MEDIA_VPX_LIB_PATH
//	libx264, libopenh264  libmedia_h264   MEDIA_H264_LIB_PATH
//
// Each variable names the library file. STREAM_SDK_LIB_PATH names a
// directory searched for all of them. NVIDIA engines are only preferred
// when libnvcuvid loads.
//
// # Build Tags
//
//   - noopus: build without the Opus engine
//   - novpx: build without the VP8/VP9 engines
//   - noh264: build without the H.264 engines
package transcode
