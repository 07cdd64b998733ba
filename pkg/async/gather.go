package async

// Gather0 completes once every channel in c has been closed or has delivered.
func Gather0(c ...<-chan struct{}) <-chan struct{} {
	return Job(func() {
		for _, f := range c {
			<-f
		}
	})
}
