/*
go-camdetect runs live object detection on a camera feed and renders the
bounding boxes and labels over the camera preview.

Frames pushed by the camera land in a single slot FrameBuffer where a newer
frame always replaces one not yet picked up, so detection never falls behind
the camera.  A single background worker copies the latest frame into a reused
pixel buffer and hands it to the Invoker, which owns the lifecycle of the
detector and rebuilds it whenever the confidence threshold changes.  Results
are passed to a Looper, the goroutine owning the view, where the
render.Overlay maps boxes from detector image space into view space.  The
Compositor flattens the preview and the overlay into a JPEG for export.

See example/camera for a program serving the preview over HTTP.
*/
package camdetect
