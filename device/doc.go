// Package device models accelerator device interfaces handed to filters through
// the device fields of a buffer descriptor.
//
// An Interface is an opaque pointer owned by the filter runtime. Runtime resolves
// those pointers and the GPU selection entry points from a loaded library:
//
//	rt := device.NewRuntime(m, device.WithKey(path))
//	iface, err := rt.Interface(device.CUDA)
//	if err != nil {
//	    return err
//	}
//	buf.SetDevice(handle, iface)
package device
