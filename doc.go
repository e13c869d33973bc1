// Package flowimg provides processing nodes that acquire camera frames,
// decode encoded images and convert them into numeric tensors.
//
// Nodes talk through typed flow ports. A typical pipeline:
//
//	cam := flowimg.NewWebcamNode[struct{}](backend, cfg)
//	toTensor := flowimg.NewTensorNode[float32]()
//	flow.Connect(cam.Output, toTensor.Input)
//
//	defer cam.Close()
//	for {
//		cam.Update()
//		toTensor.Update()
//	}
//
// Every node is driven synchronously by its host: Update does at most one
// unit of work and never spawns goroutines of its own.
package flowimg
