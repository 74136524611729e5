/*
Package kubectl is the gateway to the cluster control plane.

Gateway is the narrow contract the rest of pvcship depends on: create and
delete worker pods, poll status, exec with streamed stdin/stdout, copy
files out, capture diagnostics, and list/create claims, namespaces and
storage classes. CLI implements the contract by driving the kubectl binary
with per-call processes under the caller's context; Fake is the in-memory
test double.
*/
package kubectl
