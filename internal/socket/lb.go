package socket

// pickInstance applies one of the three LB-policy formulas to choose
// which instance of the listener's component receives a newly accepted
// connection.
func pickInstance(policy LBPolicy, socketID int32, callerInstID, instNum int) int {
	switch policy {
	case LBAllInstance:
		if instNum <= 0 {
			return callerInstID
		}
		return int(socketID)%instNum + 1
	case LBCallerInstance:
		return callerInstID
	case LBExcludeCallerInstance:
		if instNum <= 1 {
			return callerInstID
		}
		others := make([]int, 0, instNum-1)
		for i := 1; i <= instNum; i++ {
			if i != callerInstID {
				others = append(others, i)
			}
		}
		return others[int(socketID)%len(others)]
	default:
		return callerInstID
	}
}
